// Command aigentmem is an offline memory investigation and maintenance
// tool: it operates directly on a workspace's event log (no running
// daemon required) to report stats, inspect a tier, list sleep-cycle
// promotions, wipe a layer, or export the current vault projection.
//
// Mirrors the flat os.Args switch idiom used elsewhere in this codebase
// (one func per subcommand, a trailing positional storage-path argument),
// generalized from a flat observation store to the six-tier event-sourced
// memory substrate; commands use the "memory <verb>" surface spec §6 names.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aigent/internal/memtier"
	"aigent/internal/vault"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "stats":
		cmdStats(args)
	case "inspect":
		cmdInspect(args)
	case "promotions":
		cmdPromotions(args)
	case "wipe":
		cmdWipe(args)
	case "export-vault":
		cmdExportVault(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`aigentmem - offline memory inspection tool

Usage:
  aigentmem <command> [options] <workspace>

Commands:
  stats                       Show per-tier entry counts
  inspect <tier>               List entries in a tier (core, user_profile, ...)
  promotions                  List entries synthesized by sleep cycles
  wipe <tier|all> [--yes]     Remove a tier's entries (or all) and rewrite the log
  export-vault <vault-dir>    Project the current memory into vault markdown files

Examples:
  aigentmem stats ./workspace
  aigentmem inspect core ./workspace
  aigentmem promotions ./workspace
  aigentmem wipe episodic --yes ./workspace
  aigentmem export-vault ./workspace/vault ./workspace`)
}

func eventLogPath(workspace string) string {
	return filepath.Join(workspace, ".aigent", "memory", "events.jsonl")
}

func openManager(workspace string) (*memtier.Manager, error) {
	log := memtier.NewEventLog(eventLogPath(workspace))
	mem := memtier.NewManager(log)
	if err := mem.Replay(); err != nil {
		return nil, fmt.Errorf("replaying event log: %w", err)
	}
	return mem, nil
}

// splitFlags separates --flag arguments from positional ones, returning the
// set of boolean flags seen and the remaining positional arguments in order.
func splitFlags(args []string) (flags map[string]bool, positional []string) {
	flags = make(map[string]bool)
	for _, a := range args {
		if strings.HasPrefix(a, "--") {
			flags[strings.TrimPrefix(a, "--")] = true
			continue
		}
		positional = append(positional, a)
	}
	return flags, positional
}

func cmdStats(args []string) {
	_, positional := splitFlags(args)
	if len(positional) < 1 {
		fatal("Error: workspace path required")
	}
	mem, err := openManager(positional[0])
	if err != nil {
		fatal("Error: " + err.Error())
	}
	stats := mem.Stats()
	fmt.Printf("total entries: %d\n", stats.Total)
	for _, t := range memtier.AllTiers {
		fmt.Printf("  %-12s %d\n", t.String(), stats.ByTier[t])
	}
	if stats.CacheHits+stats.CacheMisses > 0 {
		total := stats.CacheHits + stats.CacheMisses
		fmt.Printf("secondary index cache: hits=%d misses=%d hit_rate=%.1f%%\n",
			stats.CacheHits, stats.CacheMisses, 100*float64(stats.CacheHits)/float64(total))
	}
}

func cmdInspect(args []string) {
	_, positional := splitFlags(args)
	if len(positional) < 2 {
		fatal("Error: usage: aigentmem inspect <tier> <workspace>")
	}
	tier, ok := memtier.ParseTier(positional[0])
	if !ok {
		fatal(fmt.Sprintf("Error: unknown tier %q", positional[0]))
	}
	mem, err := openManager(positional[1])
	if err != nil {
		fatal("Error: " + err.Error())
	}
	entries := mem.EntriesByTier(tier)
	if len(entries) == 0 {
		fmt.Printf("no entries in tier %s\n", tier)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	for _, e := range entries {
		fmt.Printf("[%s] %s conf=%.2f src=%s :: %s\n",
			e.CreatedAt.Format("2006-01-02T15:04:05Z"), shortID(e.ID.String()), e.Confidence, e.Source, e.Content)
	}
}

func cmdPromotions(args []string) {
	_, positional := splitFlags(args)
	if len(positional) < 1 {
		fatal("Error: workspace path required")
	}
	mem, err := openManager(positional[0])
	if err != nil {
		fatal("Error: " + err.Error())
	}
	var promoted []memtier.Entry
	for _, e := range mem.All() {
		if strings.HasPrefix(e.Source, "sleep:") {
			promoted = append(promoted, e)
		}
	}
	if len(promoted) == 0 {
		fmt.Println("no sleep-cycle promotions recorded")
		return
	}
	sort.Slice(promoted, func(i, j int) bool { return promoted[i].CreatedAt.Before(promoted[j].CreatedAt) })
	for _, e := range promoted {
		fmt.Printf("[%s -> %s] %s :: %s\n", e.Source, e.Tier, shortID(e.ID.String()), e.Content)
	}
}

func cmdWipe(args []string) {
	flags, positional := splitFlags(args)
	if len(positional) < 2 {
		fatal("Error: usage: aigentmem wipe <tier|all> [--yes] <workspace>")
	}
	target, workspace := positional[0], positional[1]
	if !flags["yes"] {
		fatal("Error: refusing to wipe without --yes")
	}
	mem, err := openManager(workspace)
	if err != nil {
		fatal("Error: " + err.Error())
	}
	if strings.EqualFold(target, "all") {
		if err := mem.WipeAll(); err != nil {
			fatal("Error: " + err.Error())
		}
		fmt.Println("wiped all tiers")
		return
	}
	tier, ok := memtier.ParseTier(target)
	if !ok {
		fatal(fmt.Sprintf("Error: unknown tier %q", target))
	}
	if err := mem.WipeTiers([]memtier.Tier{tier}); err != nil {
		fatal("Error: " + err.Error())
	}
	fmt.Printf("wiped tier %s\n", tier)
}

func cmdExportVault(args []string) {
	_, positional := splitFlags(args)
	if len(positional) < 2 {
		fatal("Error: usage: aigentmem export-vault <vault-dir> <workspace>")
	}
	vaultDir, workspace := positional[0], positional[1]
	mem, err := openManager(workspace)
	if err != nil {
		fatal("Error: " + err.Error())
	}
	vlt, err := vault.New(vaultDir)
	if err != nil {
		fatal("Error: " + err.Error())
	}
	if err := vlt.Sync(mem.All()); err != nil {
		fatal("Error: " + err.Error())
	}
	fmt.Printf("exported %d entries to %s\n", len(mem.All()), vaultDir)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
