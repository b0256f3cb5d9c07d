// Package steamtest provides an in-memory fetcher for crawler and pipeline tests.
package steamtest

import (
	"context"
	"sync"

	"github.com/alvmarrod/steam-weaver/internal/model"
)

// Fake serves profiles, friend lists, groups and games from maps.
// A profile marked private answers friends, groups and games as unavailable.
type Fake struct {
	mu       sync.Mutex
	Profiles map[model.ID]model.ProfileRecord
	Friends  map[model.ID][]model.ID
	Groups   map[model.ID][]model.ID
	Games    map[model.ID][]uint32
	Bans     map[model.ID]model.BanStatus
	Vanity   map[string]model.ID

	// CancelAfter cancels the bound context once this many friend lists were served
	CancelAfter int
	cancel      context.CancelFunc

	calls map[string][]model.ID
}

// New returns an empty fake
func New() *Fake {
	return &Fake{
		Profiles: make(map[model.ID]model.ProfileRecord),
		Friends:  make(map[model.ID][]model.ID),
		Groups:   make(map[model.ID][]model.ID),
		Games:    make(map[model.ID][]uint32),
		Bans:     make(map[model.ID]model.BanStatus),
		Vanity:   make(map[string]model.ID),
		calls:    make(map[string][]model.ID),
	}
}

// AddPublic registers a public profile with the given friends
func (f *Fake) AddPublic(id model.ID, label string, friends ...model.ID) {
	f.Profiles[id] = model.ProfileRecord{ID: id, Label: label, Visibility: model.VisibilityPublic}
	f.Friends[id] = friends
}

// AddPrivate registers a private profile
func (f *Fake) AddPrivate(id model.ID, label string) {
	f.Profiles[id] = model.ProfileRecord{ID: id, Label: label, Visibility: model.VisibilityPrivate}
}

// Bind arranges for cancel to be called after CancelAfter friend lists
func (f *Fake) Bind(cancel context.CancelFunc) {
	f.cancel = cancel
}

// Calls returns the ids passed to the named method, in call order
func (f *Fake) Calls(method string) []model.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ID(nil), f.calls[method]...)
}

func (f *Fake) record(method string, ids ...model.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method] = append(f.calls[method], ids...)
}

func (f *Fake) public(id model.ID) bool {
	p, ok := f.Profiles[id]
	return ok && p.Public()
}

// Resolve maps vanity names through the Vanity table; numeric input is not supported
func (f *Fake) Resolve(ctx context.Context, target string) (model.ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if id, ok := f.Vanity[target]; ok {
		return id, nil
	}
	return model.ParseID(target)
}

func (f *Fake) GetProfile(ctx context.Context, id model.ID) (model.ProfileRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.ProfileRecord{}, false, err
	}
	f.record("GetProfile", id)
	p, ok := f.Profiles[id]
	return p, ok, nil
}

func (f *Fake) GetProfiles(ctx context.Context, ids []model.ID) (map[model.ID]model.ProfileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.record("GetProfiles", ids...)
	out := make(map[model.ID]model.ProfileRecord, len(ids))
	for _, id := range ids {
		if p, ok := f.Profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// GetBans answers every known profile; accounts without an entry in Bans are clean
func (f *Fake) GetBans(ctx context.Context, ids []model.ID) (map[model.ID]model.BanStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.record("GetBans", ids...)
	out := make(map[model.ID]model.BanStatus, len(ids))
	for _, id := range ids {
		if _, ok := f.Profiles[id]; ok {
			out[id] = f.Bans[id]
		}
	}
	return out, nil
}

func (f *Fake) GetFriends(ctx context.Context, id model.ID) ([]model.ID, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.record("GetFriends", id)
	served := len(f.Calls("GetFriends"))
	if f.cancel != nil && f.CancelAfter > 0 && served >= f.CancelAfter {
		f.cancel()
	}
	if !f.public(id) {
		return nil, false, nil
	}
	return append([]model.ID(nil), f.Friends[id]...), true, nil
}

func (f *Fake) GetGroups(ctx context.Context, id model.ID) ([]model.ID, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.record("GetGroups", id)
	if !f.public(id) {
		return nil, false, nil
	}
	return append([]model.ID(nil), f.Groups[id]...), true, nil
}

func (f *Fake) GetOwnedGames(ctx context.Context, id model.ID) ([]uint32, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.record("GetOwnedGames", id)
	if !f.public(id) {
		return nil, false, nil
	}
	return append([]uint32(nil), f.Games[id]...), true, nil
}
