package model

import (
	"fmt"
	"sort"
	"strconv"
)

// ID is a SteamID64 for profiles or a numeric group id
type ID uint64

// ParseID parses a decimal identifier
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return ID(v), nil
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// SortIDs sorts ids ascending in place and returns them
func SortIDs(ids []ID) []ID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Visibility describes whether a profile's data could be read
type Visibility int

const (
	VisibilityUnknown Visibility = iota
	VisibilityPrivate
	VisibilityPublic
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPrivate:
		return "private"
	case VisibilityPublic:
		return "public"
	default:
		return "unknown"
	}
}

// ProfileRecord is the fetched view of a single profile.
// Records are replaced as a whole on re-fetch, never patched.
type ProfileRecord struct {
	ID         ID         `json:"id"`
	Label      string     `json:"label"`
	Visibility Visibility `json:"visibility"`
	Banned     bool       `json:"banned"`
	VACBans    int        `json:"vac_bans"`
	GameBans   int        `json:"game_bans"`
	Games      []uint32   `json:"games,omitempty"`
}

// Public reports whether the profile is known to be public
func (p ProfileRecord) Public() bool {
	return p.Visibility == VisibilityPublic
}

// BanStatus is the ban summary of one account
type BanStatus struct {
	VACBanned bool `json:"vac_banned"`
	VACBans   int  `json:"vac_bans"`
	GameBans  int  `json:"game_bans"`
}

// WithBans returns a copy of the record carrying the given ban status
func (p ProfileRecord) WithBans(b BanStatus) ProfileRecord {
	cp := p
	cp.VACBans = b.VACBans
	cp.GameBans = b.GameBans
	cp.Banned = b.VACBanned || b.VACBans > 0 || b.GameBans > 0
	return cp
}

// WithGames returns a copy of the record carrying the given owned games
func (p ProfileRecord) WithGames(games []uint32) ProfileRecord {
	cp := p
	cp.Games = append([]uint32(nil), games...)
	sort.Slice(cp.Games, func(i, j int) bool { return cp.Games[i] < cp.Games[j] })
	return cp
}

// EdgeKind is the relationship an edge represents
type EdgeKind string

const (
	EdgeFriend EdgeKind = "friend"
	EdgeGroup  EdgeKind = "group"
)

// Valid reports whether k is a known edge kind
func (k EdgeKind) Valid() bool {
	return k == EdgeFriend || k == EdgeGroup
}

// Edge is an undirected relationship between two profiles
type Edge struct {
	Source ID       `json:"source"`
	Target ID       `json:"target"`
	Kind   EdgeKind `json:"kind"`
}

// Node is a profile together with the context in which the crawl reached it
type Node struct {
	ID            ID   `json:"id"`
	Depth         int  `json:"depth"`
	Seed          bool `json:"seed"`
	Frontier      bool `json:"frontier"`
	Expanded      bool `json:"expanded"`
	GroupsFetched bool `json:"groups_fetched"`
	GamesFetched  bool `json:"games_fetched"`
	BansFetched   bool `json:"bans_fetched"`
}

// QueueEntry is a pending frontier item
type QueueEntry struct {
	ID    ID  `json:"id"`
	Depth int `json:"depth"`
}

// Crawl statuses stored with a record
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// CrawlRecord is the frontier state plus everything materialized so far.
// It is what gets checkpointed and what the graph builder consumes.
type CrawlRecord struct {
	RunID    string               `json:"run_id"`
	Seed     ID                   `json:"seed"`
	MaxDepth int                  `json:"max_depth"`
	Status   string               `json:"status"`
	Nodes    []Node               `json:"nodes"`
	Profiles map[ID]ProfileRecord `json:"profiles"`
	Groups   map[ID][]ID          `json:"groups"`
	Edges    []Edge               `json:"edges"`
	Queue    []QueueEntry         `json:"queue"`
	Visited  []ID                 `json:"visited"`
}

// NewCrawlRecord returns an empty record for seed
func NewCrawlRecord(seed ID, maxDepth int) *CrawlRecord {
	return &CrawlRecord{
		Seed:     seed,
		MaxDepth: maxDepth,
		Status:   StatusRunning,
		Profiles: make(map[ID]ProfileRecord),
		Groups:   make(map[ID][]ID),
	}
}
