package prompts

import (
	"testing"

	"github.com/promptd/promptd/internal/domain"
)

func TestKeyBuilders(t *testing.T) {
	nk := domain.NaturalKey{Namespace: "default", Name: "caption", Version: 2}

	if got, want := PromptKey("abc"), "promptd:prompts:abc"; got != want {
		t.Errorf("PromptKey() = %q, want %q", got, want)
	}
	if got, want := IndexKey(nk), "promptd:prompts_by_name:default:caption:2"; got != want {
		t.Errorf("IndexKey() = %q, want %q", got, want)
	}
	if got, want := IndexPrefix("default"), "promptd:prompts_by_name:default:"; got != want {
		t.Errorf("IndexPrefix() = %q, want %q", got, want)
	}
	if got, want := IndexNamePrefix("default", "caption"), "promptd:prompts_by_name:default:caption:"; got != want {
		t.Errorf("IndexNamePrefix() = %q, want %q", got, want)
	}
	if got, want := DefaultKey("default"), "promptd:prompts_default:default"; got != want {
		t.Errorf("DefaultKey() = %q, want %q", got, want)
	}
}

func TestNaturalKeyFromIndexKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    domain.NaturalKey
		wantErr bool
	}{
		{
			name: "round trip",
			key:  IndexKey(domain.NaturalKey{Namespace: "vision", Name: "ocr", Version: 7}),
			want: domain.NaturalKey{Namespace: "vision", Name: "ocr", Version: 7},
		},
		{
			name:    "wrong prefix",
			key:     "promptd:prompts:abc",
			wantErr: true,
		},
		{
			name:    "missing segments",
			key:     KeyPrefixIndex + "onlyns",
			wantErr: true,
		},
		{
			name:    "non numeric version",
			key:     KeyPrefixIndex + "ns:name:latest",
			wantErr: true,
		},
		{
			name:    "zero version",
			key:     KeyPrefixIndex + "ns:name:0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NaturalKeyFromIndexKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NaturalKeyFromIndexKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NaturalKeyFromIndexKey() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNamespaceExtraction(t *testing.T) {
	ns, err := NamespaceFromIndexKey(IndexKey(domain.NaturalKey{Namespace: "vision", Name: "ocr", Version: 1}))
	if err != nil || ns != "vision" {
		t.Errorf("NamespaceFromIndexKey() = %q, %v", ns, err)
	}

	ns, err = NamespaceFromDefaultKey(DefaultKey("vision"))
	if err != nil || ns != "vision" {
		t.Errorf("NamespaceFromDefaultKey() = %q, %v", ns, err)
	}

	if _, err := NamespaceFromDefaultKey("promptd:prompts_default:"); err == nil {
		t.Error("NamespaceFromDefaultKey() accepted empty namespace")
	}
	if _, err := NamespaceFromIndexKey("bogus"); err == nil {
		t.Error("NamespaceFromIndexKey() accepted bogus key")
	}
}
