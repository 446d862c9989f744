// Package vault implements C8, the human-editable markdown projection of
// memory: a one-way write-out of the current entry set to fixed key-value
// summary files plus a notes index, and a bidirectional fsnotify watcher
// that ingests human edits back in as `human-edit` entries. New package,
// grounded on spec §6's vault layout description; the checksum-header and
// watcher idiom follows theRebelliousNerd-codenerd's mangle_watcher.go
// debounced fsnotify loop.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"aigent/internal/memtier"
)

const (
	// KVCore is the fixed Core-tier summary filename.
	KVCore = "core.md"
	// KVUserProfile is the fixed UserProfile-tier summary filename.
	KVUserProfile = "user_profile.md"
	// KVRecentActivity is the fixed recent-activity summary filename.
	KVRecentActivity = "recent_activity.md"

	indexFilename = "index.md"
	notesDir      = "notes"

	recentActivityLimit = 40
)

// checksumHeaderPrefix begins every projected summary file so a later read
// can detect whether a human hand-edited the file since the last sync.
const checksumHeaderPrefix = "<!-- aigent-checksum: "

// Vault projects memory entries into a directory of markdown files and
// watches that directory for human edits, satisfying
// memtier.Manager's VaultSyncer contract.
type Vault struct {
	root string
}

// New returns a Vault rooted at dir, creating dir and its notes/
// subdirectory if they don't already exist.
func New(dir string) (*Vault, error) {
	if err := os.MkdirAll(filepath.Join(dir, notesDir), 0o755); err != nil {
		return nil, fmt.Errorf("vault: creating %s: %w", dir, err)
	}
	return &Vault{root: dir}, nil
}

// Sync projects the full entry set into the vault's fixed summary files and
// index, satisfying memtier.VaultSyncer.
func (v *Vault) Sync(entries []memtier.Entry) error {
	byTier := make(map[memtier.Tier][]memtier.Entry, len(memtier.AllTiers))
	for _, e := range entries {
		byTier[e.Tier] = append(byTier[e.Tier], e)
	}

	if err := v.writeSummary(KVCore, "Core Identity", byTier[memtier.Core]); err != nil {
		return err
	}
	if err := v.writeSummary(KVUserProfile, "User Profile", byTier[memtier.UserProfile]); err != nil {
		return err
	}
	if err := v.writeSummary(KVRecentActivity, "Recent Activity", recentEntries(entries, recentActivityLimit)); err != nil {
		return err
	}
	for _, t := range memtier.AllTiers {
		if err := v.writeSummary(filepath.Join(notesDir, t.String()+".md"), t.String(), byTier[t]); err != nil {
			return err
		}
	}
	return v.writeIndex(byTier)
}

// IdentitySummary returns a one-line synthetic context item describing the
// vault's current Core projection, prepended by the ranker ahead of its
// normal ranked results (spec §4.6).
func (v *Vault) IdentitySummary() (string, bool) {
	path := filepath.Join(v.root, KVCore)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	body := stripChecksumHeader(string(data))
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	lines := strings.Split(body, "\n")
	var first string
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if line != "" && !strings.HasPrefix(line, "#") {
			first = line
			break
		}
	}
	if first == "" {
		return "", false
	}
	return "Vault identity summary: " + first, true
}

func (v *Vault) writeSummary(filename, title string, entries []memtier.Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s _(source: %s)_\n", e.Content, e.Source)
	}
	body := b.String()
	checksum := checksumOf(body)

	var out strings.Builder
	fmt.Fprintf(&out, "%s%s -->\n\n", checksumHeaderPrefix, checksum)
	out.WriteString(body)

	return atomicWrite(filepath.Join(v.root, filename), out.String())
}

func (v *Vault) writeIndex(byTier map[memtier.Tier][]memtier.Entry) error {
	var b strings.Builder
	b.WriteString("# Memory Index\n\n")
	for _, t := range memtier.AllTiers {
		fmt.Fprintf(&b, "- %s: %d entries\n", t.String(), len(byTier[t]))
	}
	b.WriteString("\nSee notes/ for per-tier detail, ")
	fmt.Fprintf(&b, "%s, %s, %s for fixed summaries.\n", KVCore, KVUserProfile, KVRecentActivity)
	return atomicWrite(filepath.Join(v.root, indexFilename), b.String())
}

// HumanEdited reports whether filename's current on-disk content no longer
// matches the checksum this vault last wrote for it — i.e. a human edited
// it since the last Sync.
func (v *Vault) HumanEdited(filename string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(v.root, filename))
	if err != nil {
		return false, err
	}
	content := string(data)
	recorded, body, ok := parseChecksumHeader(content)
	if !ok {
		return true, nil
	}
	return recorded != checksumOf(body), nil
}

// Root returns the vault's root directory.
func (v *Vault) Root() string { return v.root }

func recentEntries(entries []memtier.Entry, limit int) []memtier.Entry {
	sorted := append([]memtier.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func checksumOf(body string) string {
	return strconv.FormatUint(xxhash.Sum64String(body), 16)
}

func stripChecksumHeader(content string) string {
	_, body, _ := parseChecksumHeader(content)
	return body
}

// parseChecksumHeader splits a projected file into its recorded checksum
// and body. ok is false if content has no recognizable checksum header
// (e.g. a file a human created from scratch).
func parseChecksumHeader(content string) (checksum, body string, ok bool) {
	if !strings.HasPrefix(content, checksumHeaderPrefix) {
		return "", content, false
	}
	end := strings.Index(content, " -->\n")
	if end == -1 {
		return "", content, false
	}
	checksum = content[len(checksumHeaderPrefix):end]
	rest := content[end+len(" -->\n"):]
	return checksum, strings.TrimPrefix(rest, "\n"), true
}

func atomicWrite(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("vault: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vault: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
