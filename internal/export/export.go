package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/analysis"
	"github.com/alvmarrod/steam-weaver/internal/graph"
	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/alvmarrod/steam-weaver/internal/ranker"
)

// stampLayout names each run's output directory
const stampLayout = "20060102_150405"

// Paths locates every artifact of one export
type Paths struct {
	Dir           string `json:"dir"`
	NodesCSV      string `json:"nodes_csv"`
	EdgesCSV      string `json:"edges_csv"`
	AssociatesCSV string `json:"associates_csv"`
	RawJSON       string `json:"raw_json"`
	SummaryJSON   string `json:"summary_json"`
}

// Layout returns <outputDir>/<seed>/<stamp>/ with a gephi/ sub-directory
func Layout(outputDir string, seed model.ID, at time.Time) Paths {
	dir := filepath.Join(outputDir, seed.String(), at.Format(stampLayout))
	gephi := filepath.Join(dir, "gephi")
	return Paths{
		Dir:           dir,
		NodesCSV:      filepath.Join(gephi, "nodes.csv"),
		EdgesCSV:      filepath.Join(gephi, "edges.csv"),
		AssociatesCSV: filepath.Join(dir, "probable_friends.csv"),
		RawJSON:       filepath.Join(dir, "scan.json"),
		SummaryJSON:   filepath.Join(dir, "summary.json"),
	}
}

// Summary is a short description of an exported run
type Summary struct {
	RunID        string    `json:"run_id"`
	Seed         string    `json:"seed"`
	MaxDepth     int       `json:"max_depth"`
	Nodes        int       `json:"nodes"`
	Edges        int       `json:"edges"`
	Communities  int       `json:"communities"`
	Modularity   float64   `json:"modularity"`
	HubThreshold float64   `json:"hub_threshold"`
	Hubs         []string  `json:"hubs"`
	Associates   int       `json:"associates"`
	ExportedAt   time.Time `json:"exported_at"`
}

// Write exports the graph tables, the ranked associates, the raw record and
// a summary into the directories named by paths
func Write(paths Paths, rec *model.CrawlRecord, snap *graph.Snapshot, res *analysis.Result, scores []ranker.Score) error {
	if err := os.MkdirAll(filepath.Dir(paths.NodesCSV), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeFile(paths.NodesCSV, func(w io.Writer) error { return WriteNodes(w, snap, res) }); err != nil {
		return err
	}
	if err := writeFile(paths.EdgesCSV, func(w io.Writer) error { return WriteEdges(w, snap) }); err != nil {
		return err
	}
	if err := writeFile(paths.AssociatesCSV, func(w io.Writer) error { return WriteAssociates(w, scores) }); err != nil {
		return err
	}
	if err := WriteRecord(paths.RawJSON, rec); err != nil {
		return err
	}

	hubs := make([]string, 0)
	for _, id := range res.Hubs() {
		hubs = append(hubs, id.String())
	}
	summary := Summary{
		RunID:        rec.RunID,
		Seed:         snap.Seed().String(),
		MaxDepth:     rec.MaxDepth,
		Nodes:        snap.NodeCount(),
		Edges:        snap.EdgeCount(),
		Communities:  res.Communities,
		Modularity:   res.Modularity,
		HubThreshold: res.HubThreshold,
		Hubs:         hubs,
		Associates:   len(scores),
		ExportedAt:   time.Now().UTC(),
	}
	return writeJSON(paths.SummaryJSON, summary)
}

// WriteNodes writes the Gephi node table
func WriteNodes(w io.Writer, snap *graph.Snapshot, res *analysis.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Id", "Label", "degree", "betweenness", "modularity_class", "is_seed", "is_hub", "is_banned", "is_public"}); err != nil {
		return fmt.Errorf("failed to write node header: %w", err)
	}

	for _, n := range snap.Nodes() {
		m, ok := res.Get(n.ID)
		if !ok {
			return fmt.Errorf("no metrics for node %s", n.ID)
		}
		label := n.ID.String()
		banned, public := false, false
		if p, ok := snap.Profile(n.ID); ok {
			if p.Label != "" {
				label = p.Label
			}
			banned = p.Banned
			public = p.Public()
		}

		row := []string{
			n.ID.String(),
			SanitizeLabel(label),
			strconv.Itoa(m.Degree),
			strconv.FormatFloat(m.Betweenness, 'f', -1, 64),
			strconv.Itoa(m.Community),
			strconv.FormatBool(n.ID == snap.Seed()),
			strconv.FormatBool(m.Hub),
			strconv.FormatBool(banned),
			strconv.FormatBool(public),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write node %s: %w", n.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteEdges writes the Gephi edge table
func WriteEdges(w io.Writer, snap *graph.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Source", "Target", "Kind"}); err != nil {
		return fmt.Errorf("failed to write edge header: %w", err)
	}
	for _, e := range snap.Edges() {
		if err := cw.Write([]string{e.Source.String(), e.Target.String(), string(e.Kind)}); err != nil {
			return fmt.Errorf("failed to write edge: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAssociates writes the ranked associate table
func WriteAssociates(w io.Writer, scores []ranker.Score) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"candidate_steamid", "score", "mutual_count", "jaccard_with_seed", "shared_groups", "shared_games"}); err != nil {
		return fmt.Errorf("failed to write associate header: %w", err)
	}
	for _, s := range scores {
		row := []string{
			s.Candidate.String(),
			strconv.FormatFloat(s.Score, 'f', 4, 64),
			strconv.Itoa(s.Mutual),
			strconv.FormatFloat(s.Jaccard, 'f', 4, 64),
			strconv.Itoa(s.SharedGroups),
			strconv.Itoa(s.SharedGames),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write associate %s: %w", s.Candidate, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SanitizeLabel strips characters Gephi's CSV importer mishandles
func SanitizeLabel(s string) string {
	r := strings.NewReplacer(",", " ", "\n", " ", "\r", " ", `"`, "'")
	return strings.TrimSpace(r.Replace(s))
}

// WriteRecord saves the raw crawl record as indented JSON
func WriteRecord(path string, rec *model.CrawlRecord) error {
	return writeJSON(path, rec)
}

// ReadRecord loads a raw crawl record written by WriteRecord
func ReadRecord(path string) (*model.CrawlRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crawl record: %w", err)
	}
	var rec model.CrawlRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse crawl record: %w", err)
	}
	return &rec, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	return nil
}
