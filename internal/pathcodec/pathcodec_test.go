package pathcodec

import (
	"reflect"
	"testing"

	"github.com/groupfs/groupfs/internal/fserr"
)

func TestParse_Root(t *testing.T) {
	segs, err := Parse("/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if segs != nil {
		t.Fatalf("segs = %v, want nil", segs)
	}
}

func TestParse_SingleSegment(t *testing.T) {
	segs, err := Parse("/vulns")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(segs, []string{"vulns"}) {
		t.Fatalf("segs = %v, want [vulns]", segs)
	}
}

func TestParse_MultipleSegments(t *testing.T) {
	segs, err := Parse("/vulns/CVE-2024-1234/severity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"vulns", "CVE-2024-1234", "severity"}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("segs = %v, want %v", segs, want)
	}
}

func TestParse_CollapsesRedundantSeparators(t *testing.T) {
	segs, err := Parse("//vulns///CVE-2024-1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"vulns", "CVE-2024-1234"}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("segs = %v, want %v", segs, want)
	}
}

func TestParse_BackslashSeparator(t *testing.T) {
	segs, err := Parse(`\vulns\CVE-2024-1234`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"vulns", "CVE-2024-1234"}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("segs = %v, want %v", segs, want)
	}
}

func TestParse_InvalidRelativePath(t *testing.T) {
	_, err := Parse("vulns/CVE-2024-1234")
	if !fserr.Is(err, fserr.Invalid) {
		t.Fatalf("want Invalid, got %v", err)
	}
}

func TestJoin(t *testing.T) {
	got := Join([]string{"vulns", "CVE-2024-1234"})
	if got != "/vulns/CVE-2024-1234" {
		t.Fatalf("Join() = %q, want /vulns/CVE-2024-1234", got)
	}
	if got := Join(nil); got != "/" {
		t.Fatalf("Join(nil) = %q, want /", got)
	}
}
