// Package maintenance holds offline housekeeping operations invoked from
// cmd/maintenance. Nothing here runs as part of the live reconciliation
// path; purging in particular deletes rows the engine would never touch.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// tokenGroups maps name substrings to group labels, checked in order.
// More specific symbols come before the generic ones they contain.
var tokenGroups = []struct {
	pattern string
	group   string
}{
	{"reusd", "reUSD"},
	{"re-usd", "reUSD"},
	{"usde", "USDe"},
	{"eeth", "eETH"},
	{"e-eth", "eETH"},
	{"steth", "stETH"},
	{"st-eth", "stETH"},
	{"weth", "wETH"},
	{"w-eth", "wETH"},
	{"usdc", "USDC"},
	{"usdt", "USDT"},
	{"dai", "DAI"},
	{"btc", "BTC"},
	{"eth", "ETH"},
}

var (
	dateSuffix    = regexp.MustCompile(`-\d{4}(-\d{2})?(-\d{2})?$`)
	versionSuffix = regexp.MustCompile(`-[vV]\d+(\.\d+)?$`)
)

// ExtractGroup derives a group label from a project name: known token
// symbols first, then the name with date and version suffixes stripped.
func ExtractGroup(name string) string {
	if name == "" {
		return domain.DefaultGroup
	}

	lower := strings.ToLower(name)
	for _, tg := range tokenGroups {
		if strings.Contains(lower, tg.pattern) {
			return tg.group
		}
	}

	cleaned := dateSuffix.ReplaceAllString(name, "")
	cleaned = versionSuffix.ReplaceAllString(cleaned, "")
	if len(cleaned) > 2 {
		if len(cleaned) <= 15 {
			return cleaned
		}
		return strings.TrimSpace(cleaned[:15])
	}

	if len(name) <= 20 {
		return name
	}
	return strings.TrimSpace(name[:20])
}

// PurgeLowVolume deletes projects whose 24h volume is unknown or at or
// below threshold. Unknown volume counts as zero here, unlike the
// qualification predicate which merely hides such projects.
func PurgeLowVolume(ctx context.Context, projects storage.ProjectStore, threshold float64, logger *log.Logger) (int, error) {
	all, err := projects.GetAll(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}

	deleted := 0
	for _, p := range all {
		if p.Volume24h != nil && *p.Volume24h > threshold {
			continue
		}
		if err := projects.Delete(ctx, p.Address); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", p.Address, err)
		}
		logger.Printf("purged %s (%s), volume %v", p.Name, p.Address, p.Volume24h)
		deleted++
	}
	return deleted, nil
}

// Regroup moves unmonitored projects out of the default group using the
// name heuristic and re-enables monitoring on them. Projects already in a
// user-chosen group are left alone.
func Regroup(ctx context.Context, s storage.Stores, logger *log.Logger) (int, error) {
	all, err := s.Projects.GetUnmonitored(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list unmonitored projects: %w", err)
	}

	updated := 0
	for _, p := range all {
		if p.Group != domain.DefaultGroup && p.Group != "" {
			continue
		}

		group := ExtractGroup(p.Name)
		if err := s.Groups.EnsureExists(ctx, group); err != nil {
			return updated, fmt.Errorf("ensure group %q: %w", group, err)
		}
		if _, err := s.Projects.SetGroup(ctx, p.Address, group); err != nil {
			return updated, fmt.Errorf("set group for %s: %w", p.Address, err)
		}
		if _, err := s.Projects.SetMonitored(ctx, p.Address, true); err != nil {
			return updated, fmt.Errorf("set monitored for %s: %w", p.Address, err)
		}
		logger.Printf("regrouped %s (%s) into %q", p.Name, p.Address, group)
		updated++
	}
	return updated, nil
}
