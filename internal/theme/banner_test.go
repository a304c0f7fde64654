package theme

import (
	"bytes"
	"strings"
	"testing"
)

func TestBannerCarriesVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v1.2.3")
	if !strings.Contains(buf.String(), "v1.2.3") {
		t.Fatalf("version missing from banner: %q", buf.String())
	}
}
