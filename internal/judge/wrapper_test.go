package judge

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		language string
		driver   string
		want     string
	}{
		{
			name:     "cpp with main unchanged",
			code:     "int main() { return 0; }",
			language: "cpp",
			driver:   "ignored",
			want:     "int main() { return 0; }",
		},
		{
			name:     "cpp main with odd spacing",
			code:     "int   main (void) {}",
			language: "cpp",
			want:     "int   main (void) {}",
		},
		{
			name:     "cpp function gets preamble and driver",
			code:     "int add(int a, int b) { return a + b; }",
			language: "cpp",
			driver:   "int main() { cout << add(1, 2); }",
			want:     CPPPreamble + "int add(int a, int b) { return a + b; }\n\nint main() { cout << add(1, 2); }",
		},
		{
			name:     "cpp without driver gets only preamble",
			code:     "int add(int a, int b);",
			language: "cpp",
			want:     CPPPreamble + "int add(int a, int b);",
		},
		{
			name:     "java with main unchanged",
			code:     "public class Main { public static void main(String[] a) {} }",
			language: "java",
			driver:   "ignored",
			want:     "public class Main { public static void main(String[] a) {} }",
		},
		{
			name:     "java method gets driver only",
			code:     "class Solution { int f() { return 1; } }",
			language: "java",
			driver:   "public class Main { public static void main(String[] a) { System.out.println(new Solution().f()); } }",
			want:     "class Solution { int f() { return 1; } }\n\npublic class Main { public static void main(String[] a) { System.out.println(new Solution().f()); } }",
		},
		{
			name:     "python main guard unchanged",
			code:     "def f():\n    pass\n\nif __name__ == '__main__':\n    f()",
			language: "python",
			driver:   "print(f())",
			want:     "def f():\n    pass\n\nif __name__ == '__main__':\n    f()",
		},
		{
			name:     "python reading input unchanged",
			code:     "n = int(input())\nprint(n * 2)",
			language: "python",
			driver:   "print(f())",
			want:     "n = int(input())\nprint(n * 2)",
		},
		{
			name:     "python sys.stdin unchanged",
			code:     "import sys\ndata = sys.stdin.read()",
			language: "python",
			want:     "import sys\ndata = sys.stdin.read()",
		},
		{
			name:     "python function gets driver",
			code:     "def add(a, b):\n    return a + b",
			language: "python",
			driver:   "print(add(2, 3))",
			want:     "def add(a, b):\n    return a + b\n\nprint(add(2, 3))",
		},
		{
			name:     "language is case insensitive",
			code:     "def f(): pass",
			language: "Python",
			want:     "def f(): pass",
		},
		{
			name:     "main in a comment is a false positive",
			code:     "// int main() is provided by the judge\nint add(int a, int b) { return a + b; }",
			language: "cpp",
			driver:   "int main() {}",
			want:     "// int main() is provided by the judge\nint add(int a, int b) { return a + b; }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Wrap(tt.code, tt.language, tt.driver)
			if err != nil {
				t.Fatalf("Wrap() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Wrap() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap_UnsupportedLanguage(t *testing.T) {
	_, err := Wrap("fn main() {}", "rust", "")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("Wrap() error = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestHasEntryPoint(t *testing.T) {
	if !hasEntryPoint("int main(){}", LanguageCPP) {
		t.Error("cpp main not detected")
	}
	if hasEntryPoint("def main(): pass", LanguagePython) {
		t.Error("a function named main is not a python entry point")
	}
	if hasEntryPoint("int main(){}", Language("go")) {
		t.Error("unknown language should never report an entry point")
	}
}
