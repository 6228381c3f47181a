package version

import "testing"

func TestVersionStringNonEmpty(t *testing.T) {
	if s := String(); s == "" {
		t.Fatalf("version string is empty")
	}
}

func TestLoadEmbeddedVersions(t *testing.T) {
	v := Load()
	if v.Frontend == "" || v.Backend == "" {
		t.Fatalf("versions.json incomplete: %+v", v)
	}
	if len(Raw()) == 0 {
		t.Fatalf("raw versions.json is empty")
	}
}

func TestStringUsesLinkedVersion(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "9.9.9"
	if got := String(); got != "9.9.9" {
		t.Fatalf("String() = %q, want 9.9.9", got)
	}
}
