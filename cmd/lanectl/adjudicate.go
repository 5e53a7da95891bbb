package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/starlane/internal/model"
	"github.com/freeeve/starlane/internal/repository/sqlite"
	"github.com/freeeve/starlane/internal/service"
	"github.com/freeeve/starlane/pkg/starlane"
)

func newAdjudicateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjudicate",
		Short: "Resolve one phase of a board against an order sheet",
		Long: `Resolve the phase the board is in using an order sheet with one
"faction: order" per line. The order syntax follows the board's phase:

  movement  terran: G sol - capella
  retreat   terran: G sol - mars  |  terran: G sol disband
  build     terran: build G sol   |  terran: disband G mars  |  terran: waive

Units without an order hold; dislodged units without a retreat disband.`,
		RunE: runAdjudicate,
	}
	cmd.Flags().String("board", "", "board JSON file (required)")
	cmd.Flags().String("orders", "", "order sheet file (required)")
	cmd.Flags().StringP("out", "o", "", "write the next board to this file")
	cmd.Flags().String("history", "", "record the phase in this SQLite file")
	cmd.Flags().String("game", "", "history game id; a new game is created when empty")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("orders")
	return cmd
}

// sheetLine is one order from the sheet. from is filled in once parsed.
type sheetLine struct {
	line    int
	faction starlane.Faction
	text    string
	from    starlane.Position
}

func runAdjudicate(cmd *cobra.Command, args []string) error {
	topo, err := loadMap(cmd)
	if err != nil {
		return err
	}
	boardPath, _ := cmd.Flags().GetString("board")
	ordersPath, _ := cmd.Flags().GetString("orders")
	b, err := readBoard(boardPath)
	if err != nil {
		return err
	}
	lines, err := readSheet(ordersPath, topo)
	if err != nil {
		return err
	}

	before, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	year, season, phase := b.Year, b.Season, b.Phase

	results, err := resolve(b, topo, lines)
	if err != nil {
		return err
	}
	hasDislodgements := phase == starlane.PhaseMovement && len(b.Dislodged) > 0
	if season == starlane.Fall && phase != starlane.PhaseBuild {
		starlane.UpdateOwnership(b, topo)
	}
	after, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}

	starlane.AdvanceState(b, topo, hasDislodgements)
	if b.Phase == starlane.PhaseBuild && !starlane.NeedsBuildPhase(b, topo) {
		log.Debug().Msg("No adjustments owed, skipping build phase")
		starlane.AdvanceState(b, topo, false)
	}
	winner, won := starlane.Winner(b, topo)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d %s\n", season, year, phase)
	for _, r := range results {
		fmt.Fprintln(out, "  "+starlane.FormatResult(r, topo))
	}
	if won {
		fmt.Fprintf(out, "winner: %s\n", winner)
	} else {
		fmt.Fprintf(out, "next: %s %d %s\n", b.Season, b.Year, b.Phase)
	}

	if outPath, _ := cmd.Flags().GetString("out"); outPath != "" {
		if err := writeBoard(cmd, b, outPath); err != nil {
			return err
		}
	}

	historyPath, _ := cmd.Flags().GetString("history")
	if historyPath == "" {
		return nil
	}
	gameID, _ := cmd.Flags().GetString("game")
	rec := phaseRecord{
		topo: topo, year: year, season: season, phase: phase,
		before: before, after: after, results: results, lines: lines,
	}
	if won {
		rec.winner = string(winner)
	}
	gameID, phaseID, err := recordPhase(cmd.Context(), historyPath, gameID, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "recorded phase %s in game %s\n", phaseID, gameID)
	return nil
}

// readSheet reads "faction: order" lines. Blank lines and '#' comments are
// skipped.
func readSheet(path string, topo *starlane.Topology) ([]sheetLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	defer f.Close()

	var out []sheetLine
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		name, text, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: missing faction", n)
		}
		faction := starlane.Faction(strings.ToLower(strings.TrimSpace(name)))
		if !slices.Contains(topo.Factions(), faction) {
			return nil, fmt.Errorf("line %d: unknown faction %q", n, name)
		}
		out = append(out, sheetLine{line: n, faction: faction, text: strings.TrimSpace(text)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	return out, nil
}

// resolve parses the sheet in the syntax of the board's phase and applies it.
// A line that does not parse fails the whole run; orders that parse but break
// the rules are voided by the engine and show up in the log.
func resolve(b *starlane.Board, topo *starlane.Topology, lines []sheetLine) (starlane.Log, error) {
	switch b.Phase {
	case starlane.PhaseMovement:
		orders := make([]starlane.Order, 0, len(lines))
		for i, l := range lines {
			o, err := starlane.ParseOrder(l.faction, l.text, topo)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l.line, err)
			}
			lines[i].from = o.Location
			orders = append(orders, o)
		}
		return starlane.Adjudicate(orders, b, topo, nil), nil
	case starlane.PhaseRetreat:
		orders := make([]starlane.RetreatOrder, 0, len(lines))
		for i, l := range lines {
			o, err := starlane.ParseRetreatOrder(l.faction, l.text, topo)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l.line, err)
			}
			lines[i].from = o.From
			orders = append(orders, o)
		}
		return starlane.ResolveRetreats(orders, b, nil), nil
	case starlane.PhaseBuild:
		orders := make([]starlane.BuildOrder, 0, len(lines))
		for i, l := range lines {
			o, err := starlane.ParseBuildOrder(l.faction, l.text, topo)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l.line, err)
			}
			lines[i].from = o.Location
			orders = append(orders, o)
		}
		return starlane.ResolveBuildOrders(orders, b, topo), nil
	}
	return nil, fmt.Errorf("board has unknown phase %q", b.Phase)
}

type phaseRecord struct {
	topo          *starlane.Topology
	year          int
	season        starlane.Season
	phase         starlane.PhaseType
	before, after json.RawMessage
	results       starlane.Log
	lines         []sheetLine
	winner        string
}

// recordPhase stores one resolved phase in the SQLite history, creating the
// game first when gameID is empty.
func recordPhase(ctx context.Context, path, gameID string, rec phaseRecord) (string, string, error) {
	store, err := sqlite.Open(path)
	if err != nil {
		return "", "", err
	}
	defer store.Close()

	if gameID == "" {
		g, err := store.Create(ctx, &model.Game{
			Name:             "lanectl",
			MapName:          rec.topo.Name(),
			MovementDuration: "0s",
			RetreatDuration:  "0s",
			BuildDuration:    "0s",
		})
		if err != nil {
			return "", "", err
		}
		gameID = g.ID
	} else if g, err := store.FindByID(ctx, gameID); err != nil {
		return "", "", err
	} else if g == nil {
		return "", "", fmt.Errorf("game %s not found in %s", gameID, path)
	}

	p, err := store.CreatePhase(ctx, gameID, rec.year, string(rec.season), string(rec.phase), rec.before, time.Now())
	if err != nil {
		return "", "", err
	}
	results, err := json.Marshal(rec.results)
	if err != nil {
		return "", "", fmt.Errorf("encode results: %w", err)
	}
	if err := store.ResolvePhase(ctx, p.ID, uuid.NewString(), rec.after, results); err != nil {
		return "", "", err
	}
	if err := store.SaveOrders(ctx, orderRecords(p.ID, rec.lines, rec.results)); err != nil {
		return "", "", err
	}
	if rec.winner != "" {
		if err := store.SetFinished(ctx, gameID, rec.winner); err != nil {
			return "", "", err
		}
	}
	return gameID, p.ID, nil
}

// orderRecords stores every sheet line with the outcome the server would
// record for it.
func orderRecords(phaseID string, lines []sheetLine, results starlane.Log) []model.Order {
	submitted := make([]service.SubmittedOrder, len(lines))
	for i, l := range lines {
		submitted[i] = service.SubmittedOrder{Faction: string(l.faction), Text: l.text, From: l.from, Parsed: true}
	}
	return service.OrdersToModel(phaseID, submitted, results)
}
