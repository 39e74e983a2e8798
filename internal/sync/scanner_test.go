package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"reflect"
	"testing"
)

func TestNormalizeExtensions(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil falls back to defaults", nil, DefaultMediaExtensions},
		{"only blanks fall back to defaults", []string{"", "  "}, DefaultMediaExtensions},
		{"adds missing dot", []string{"jpg", "mp4"}, []string{".jpg", ".mp4"}},
		{"lowercases", []string{".JPG", "Mp4"}, []string{".jpg", ".mp4"}},
		{"trims whitespace", []string{" jpg ", ".png"}, []string{".jpg", ".png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeExtensions(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeExtensions(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsMediaFile(t *testing.T) {
	exts := []string{".jpg", ".mp4"}
	tests := []struct {
		path string
		want bool
	}{
		{"/media/a.jpg", true},
		{"/media/A.JPG", true},
		{"/media/clip.mp4", true},
		{"/media/notes.txt", false},
		{"/media/archive.jpg.bak", false},
	}
	for _, tt := range tests {
		if got := IsMediaFile(tt.path, exts); got != tt.want {
			t.Errorf("IsMediaFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLocalMediaFiles(t *testing.T) {
	root := t.TempDir()
	wantPaths := []string{
		writeFile(t, root, "a.jpg", "a"),
		writeFile(t, root, "b.MP4", "b"),
		writeFile(t, root, "sub/c.png", "c"),
	}
	writeFile(t, root, "notes.txt", "skip")
	writeFile(t, root, "sub/readme.md", "skip")

	files, err := LocalMediaFiles(root, DefaultMediaExtensions)
	if err != nil {
		t.Fatalf("LocalMediaFiles() error = %v", err)
	}
	if !reflect.DeepEqual(files, wantPaths) {
		t.Errorf("LocalMediaFiles() = %v, want %v", files, wantPaths)
	}
}

func TestLocalMediaFilesMissingRoot(t *testing.T) {
	if _, err := LocalMediaFiles("/nonexistent/root", DefaultMediaExtensions); err == nil {
		t.Error("LocalMediaFiles() on missing root returned nil error")
	}
}

func TestRemoteFindCommand(t *testing.T) {
	got := remoteFindCommand("/dst/media", []string{".jpg", ".png"})
	want := `find '/dst/media' -type f \( -name '*.jpg' -o -name '*.png' \)`
	if got != want {
		t.Errorf("remoteFindCommand() = %q, want %q", got, want)
	}
}

func TestScanRemoteIndexesExistingFiles(t *testing.T) {
	ft := newFakeTransport()
	ft.files["/dst/media/a.jpg"] = []byte("alpha")
	ft.files["/dst/media/sub/b.jpg"] = []byte("beta")
	ft.files["/elsewhere/c.jpg"] = []byte("outside")

	registry := NewDuplicateRegistry()
	err := ScanRemote(context.Background(), ft, registry, "/dst/media",
		[]string{".jpg"}, testLogger(), false, false)
	if err != nil {
		t.Fatalf("ScanRemote() error = %v", err)
	}

	if got := registry.RemoteCount(); got != 2 {
		t.Fatalf("RemoteCount() = %d, want 2", got)
	}
	sum := md5.Sum([]byte("alpha"))
	path, ok := registry.CanonicalPath(hex.EncodeToString(sum[:]))
	if !ok || path != "/dst/media/a.jpg" {
		t.Errorf("canonical path for alpha = %q (%v), want /dst/media/a.jpg", path, ok)
	}
	if len(ft.mkdirs) != 1 || ft.mkdirs[0] != "/dst/media" {
		t.Errorf("mkdirs = %v, want [/dst/media]", ft.mkdirs)
	}
}

func TestScanRemoteDryRunSkipsMkdir(t *testing.T) {
	ft := newFakeTransport()
	ft.files["/dst/media/a.jpg"] = []byte("alpha")

	registry := NewDuplicateRegistry()
	err := ScanRemote(context.Background(), ft, registry, "/dst/media",
		[]string{".jpg"}, testLogger(), true, false)
	if err != nil {
		t.Fatalf("ScanRemote() error = %v", err)
	}
	if len(ft.mkdirs) != 0 {
		t.Errorf("mkdirs = %v, want none in dry-run", ft.mkdirs)
	}
	if got := registry.RemoteCount(); got != 1 {
		t.Errorf("RemoteCount() = %d, want 1 (scan still runs in dry-run)", got)
	}
}

func TestScanRemoteSkipsUnhashableFiles(t *testing.T) {
	ft := newFakeTransport()
	ft.files["/dst/media/good.jpg"] = []byte("good")
	ft.findExtra = []string{"/dst/media/vanished.jpg"}

	registry := NewDuplicateRegistry()
	err := ScanRemote(context.Background(), ft, registry, "/dst/media",
		[]string{".jpg"}, testLogger(), false, false)
	if err != nil {
		t.Fatalf("ScanRemote() error = %v", err)
	}
	if got := registry.RemoteCount(); got != 1 {
		t.Errorf("RemoteCount() = %d, want 1 (unhashable file excluded)", got)
	}
}

func TestScanRemoteCanceled(t *testing.T) {
	ft := newFakeTransport()
	ft.files["/dst/media/a.jpg"] = []byte("alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ScanRemote(ctx, ft, NewDuplicateRegistry(), "/dst/media",
		[]string{".jpg"}, testLogger(), false, false)
	if err == nil {
		t.Error("ScanRemote() with canceled context returned nil error")
	}
}
