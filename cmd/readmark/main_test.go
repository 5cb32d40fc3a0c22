package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
)

// terminalQueries are the requests the program may send while probing the
// terminal, with the answers a plain xterm would give.
var terminalQueries = map[string]string{
	"\x1b[6n":         "\x1b[1;1R",
	"\x1b]11;?\x07":   "\x1b]11;rgb:0000/0000/0000\x07",
	"\x1b]11;?\x1b\\": "\x1b]11;rgb:0000/0000/0000\x1b\\",
	"\x1b]10;?\x07":   "\x1b]10;rgb:cccc/cccc/cccc\x07",
	"\x1b]10;?\x1b\\": "\x1b]10;rgb:cccc/cccc/cccc\x1b\\",
}

var escapeSequences = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)

// screen collects everything the program writes to the pseudo terminal.
type screen struct {
	mu       sync.Mutex
	raw      bytes.Buffer
	answered int
}

func (s *screen) write(w *os.File, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw.Write(chunk)
	for {
		pending := s.raw.Bytes()[s.answered:]
		first, firstIdx := "", -1
		for query := range terminalQueries {
			if idx := bytes.Index(pending, []byte(query)); idx >= 0 && (firstIdx < 0 || idx < firstIdx) {
				first, firstIdx = query, idx
			}
		}
		if firstIdx < 0 {
			return
		}
		_, _ = w.Write([]byte(terminalQueries[first]))
		s.answered += firstIdx + len(first)
	}
}

func (s *screen) plain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return escapeSequences.ReplaceAllString(s.raw.String(), "")
}

func (s *screen) waitFor(t *testing.T, text string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(s.plain(), text) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q; screen:\n%s", text, s.plain())
}

func buildBinary(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime caller unavailable")
	}
	bin := filepath.Join(t.TempDir(), "readmark")
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = filepath.Dir(file)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	return bin
}

func TestReaderOpensImportedDocument(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and drives the binary in a pseudo terminal")
	}
	if runtime.GOOS == "windows" {
		t.Skip("pseudo terminals are not available")
	}
	bin := buildBinary(t)
	home := t.TempDir()
	doc := filepath.Join(t.TempDir(), "essay.txt")
	if err := os.WriteFile(doc, []byte("Hello world.\n\nGoodbye world."), 0o644); err != nil {
		t.Fatal(err)
	}
	if out, err := exec.Command(bin, "--home="+home, "import", doc).CombinedOutput(); err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, "--home="+home, "--no-alt-screen")
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 32, Cols: 100})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = ptmx.Close() }()

	s := &screen{}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				s.write(ptmx, buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	s.waitFor(t, "essay")
	_, _ = ptmx.Write([]byte{'\r'})
	s.waitFor(t, "Goodbye world.")
	_, _ = ptmx.Write([]byte("q"))
	s.waitFor(t, "Back to the library.")
	_, _ = ptmx.Write([]byte("q"))

	if err := cmd.Wait(); err != nil {
		t.Fatalf("reader exited with %v; screen:\n%s", err, s.plain())
	}

	out, err := exec.Command(bin, "--home="+home, "list").CombinedOutput()
	if err != nil {
		t.Fatalf("list: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "100%") {
		t.Fatalf("reading the whole document should record full progress:\n%s", out)
	}
}
