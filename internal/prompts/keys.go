package prompts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/promptd/promptd/internal/domain"
)

const (
	// KeyPrefixPrompt is the prefix of primary records, keyed by id.
	KeyPrefixPrompt = "promptd:prompts:"
	// KeyPrefixIndex is the prefix of natural-key index entries. The value
	// is the id; the entry's presence is the uniqueness proof for its
	// (namespace, name, version) tuple.
	KeyPrefixIndex = "promptd:prompts_by_name:"
	// KeyPrefixDefault is the prefix of the per-namespace default mapping.
	// The value is the id of the namespace's current default prompt.
	KeyPrefixDefault = "promptd:prompts_default:"
)

// PromptKey returns the primary-record key for an id.
func PromptKey(id string) string {
	return KeyPrefixPrompt + id
}

// IndexKey returns the natural-key index key for (namespace, name, version).
func IndexKey(k domain.NaturalKey) string {
	return fmt.Sprintf("%s%s:%s:%d", KeyPrefixIndex, k.Namespace, k.Name, k.Version)
}

// IndexPrefix returns the index prefix covering one namespace.
func IndexPrefix(namespace string) string {
	return KeyPrefixIndex + namespace + ":"
}

// IndexNamePrefix returns the index prefix covering one namespace+name.
func IndexNamePrefix(namespace, name string) string {
	return KeyPrefixIndex + namespace + ":" + name + ":"
}

// DefaultKey returns the default-mapping key for a namespace.
func DefaultKey(namespace string) string {
	return KeyPrefixDefault + namespace
}

// NamespaceFromIndexKey extracts the namespace segment of an index key.
func NamespaceFromIndexKey(key string) (string, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefixIndex)
	if !ok {
		return "", fmt.Errorf("invalid index key: %s", key)
	}
	ns, _, ok := strings.Cut(rest, ":")
	if !ok || ns == "" {
		return "", fmt.Errorf("invalid index key: %s", key)
	}
	return ns, nil
}

// NaturalKeyFromIndexKey parses an index key back into its tuple.
func NaturalKeyFromIndexKey(key string) (domain.NaturalKey, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefixIndex)
	if !ok {
		return domain.NaturalKey{}, fmt.Errorf("invalid index key: %s", key)
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return domain.NaturalKey{}, fmt.Errorf("invalid index key: %s", key)
	}
	version, err := strconv.Atoi(parts[2])
	if err != nil || version < 1 {
		return domain.NaturalKey{}, fmt.Errorf("invalid index key version: %s", key)
	}
	return domain.NaturalKey{Namespace: parts[0], Name: parts[1], Version: version}, nil
}

// NamespaceFromDefaultKey extracts the namespace of a default-mapping key.
func NamespaceFromDefaultKey(key string) (string, error) {
	ns, ok := strings.CutPrefix(key, KeyPrefixDefault)
	if !ok || ns == "" {
		return "", fmt.Errorf("invalid default mapping key: %s", key)
	}
	return ns, nil
}
