package judge

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"
)

// makeDockerFrame builds one frame of Docker's multiplexed stream
func makeDockerFrame(streamType byte, payload []byte) []byte {
	header := make([]byte, 8)
	header[0] = streamType
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, payload...)
}

func TestDemux(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		wantStdout string
		wantStderr string
	}{
		{name: "empty", input: nil},
		{
			name:       "stdout only",
			input:      makeDockerFrame(1, []byte("hello")),
			wantStdout: "hello",
		},
		{
			name: "interleaved",
			input: bytes.Join([][]byte{
				makeDockerFrame(1, []byte("out1\n")),
				makeDockerFrame(2, []byte("err\n")),
				makeDockerFrame(1, []byte("out2\n")),
			}, nil),
			wantStdout: "out1\nout2\n",
			wantStderr: "err\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := demux(bytes.NewReader(tt.input))
			if err != nil {
				t.Fatalf("demux() error = %v", err)
			}
			if stdout != tt.wantStdout || stderr != tt.wantStderr {
				t.Errorf("demux() = %q, %q", stdout, stderr)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		res      execResult
		expected string
		want     string
	}{
		{"matching output", execResult{stdout: "3\n"}, "3", StatusAccepted},
		{"no expectation", execResult{stdout: "anything"}, "", StatusAccepted},
		{"wrong output", execResult{stdout: "4\n"}, "3", StatusWrongAnswer},
		{"timeout", execResult{exitCode: 124}, "3", StatusTimeLimitExceeded},
		{"killed", execResult{exitCode: 137}, "3", StatusTimeLimitExceeded},
		{"crash", execResult{exitCode: 1, stderr: "Traceback"}, "3", StatusRuntimeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			res.duration = 15 * time.Millisecond
			v := classify(&res, tt.expected)
			if v.Status != tt.want {
				t.Errorf("Status = %q, want %q", v.Status, tt.want)
			}
			if v.Time != "0.015" {
				t.Errorf("Time = %q", v.Time)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	got := runCommand([]string{"python3", "main.py"}, 2.5)
	want := "timeout -s KILL 2.5 python3 main.py < input.txt"
	if len(got) != 3 || got[0] != "sh" || got[2] != want {
		t.Errorf("runCommand() = %q", got)
	}
}

func TestTarFiles(t *testing.T) {
	buf, err := tarFiles(map[string]string{"main.py": "print(1)", "input.txt": ""})
	if err != nil {
		t.Fatalf("tarFiles() error = %v", err)
	}

	tr := tar.NewReader(buf)
	found := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(tr)
		found[hdr.Name] = string(body)
	}

	if found["main.py"] != "print(1)" {
		t.Errorf("main.py = %q", found["main.py"])
	}
	if _, ok := found["input.txt"]; !ok {
		t.Error("input.txt missing")
	}
}
