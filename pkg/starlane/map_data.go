package starlane

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Factions on the default map.
const (
	Terran Faction = "terran"
	Zenari Faction = "zenari"
	Korth  Faction = "korth"
	Velari Faction = "velari"
)

var (
	defaultMapOnce sync.Once
	defaultMapInst *Topology
)

// DefaultMap returns the built-in four-faction map. The topology is built once
// and cached; callers must not mutate it.
func DefaultMap() *Topology {
	defaultMapOnce.Do(func() {
		t, err := NewTopology(DefaultMapData())
		if err != nil {
			panic("starlane: default map is invalid: " + err.Error())
		}
		defaultMapInst = t
	})
	return defaultMapInst
}

// ErrUnknownMap is returned by MapByName for names with no built-in map.
var ErrUnknownMap = errors.New("unknown map")

// MapByName returns a built-in map. "" selects the default map.
func MapByName(name string) (*Topology, error) {
	switch name {
	case "", "default":
		return DefaultMap(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMap, name)
}

// ReadMap decodes map data as JSON and builds its topology.
func ReadMap(r io.Reader) (*Topology, error) {
	var md MapData
	if err := json.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return NewTopology(md)
}

// DefaultMapData returns the static data behind DefaultMap: 24 nodes, 20 supply
// centers (3 home centers per faction plus 8 neutral), and a lower layer reached
// through the void by vertical lanes.
func DefaultMapData() MapData {
	sc := func(name string, home Faction) NodeSpec {
		return NodeSpec{Name: name, SupplyCenter: true, Home: home}
	}
	plain := func(name string) NodeSpec { return NodeSpec{Name: name} }

	return MapData{
		Name: "default",
		Nodes: []NodeSpec{
			// Terran (west)
			sc("sol", Terran), sc("mars", Terran), sc("ceres", Terran),
			// Zenari (north)
			sc("zen", Zenari), sc("altair", Zenari), sc("vega", Zenari),
			// Korth (east)
			sc("korth", Korth), sc("rigel", Korth), sc("deneb", Korth),
			// Velari (south)
			sc("velar", Velari), sc("sirius", Velari), sc("procyon", Velari),
			// Neutral supply centers
			sc("lyra", Neutral), sc("polaris", Neutral), sc("antares", Neutral), sc("mira", Neutral),
			sc("capella", Neutral), sc("arcturus", Neutral), sc("castor", Neutral), sc("pollux", Neutral),
			// Empty space
			plain("nexus"), plain("drift"), plain("eridani"), plain("void"),
		},
		Lanes: [][2]string{
			{"sol", "mars"}, {"sol", "ceres"}, {"mars", "ceres"},
			{"mars", "lyra"}, {"ceres", "mira"}, {"sol", "capella"},
			{"zen", "altair"}, {"zen", "vega"}, {"altair", "vega"},
			{"altair", "lyra"}, {"vega", "polaris"}, {"zen", "capella"},
			{"korth", "rigel"}, {"korth", "deneb"}, {"rigel", "deneb"},
			{"rigel", "polaris"}, {"deneb", "antares"}, {"korth", "arcturus"},
			{"velar", "sirius"}, {"velar", "procyon"}, {"sirius", "procyon"},
			{"sirius", "mira"}, {"procyon", "antares"}, {"velar", "castor"},
			{"lyra", "nexus"}, {"polaris", "nexus"}, {"antares", "nexus"}, {"mira", "nexus"},
			{"lyra", "drift"}, {"drift", "polaris"},
			{"antares", "eridani"}, {"eridani", "mira"},
			{"castor", "pollux"}, {"pollux", "arcturus"}, {"capella", "pollux"},
		},
		VerticalLanes: [][2]string{
			{"nexus", "void"}, {"capella", "void"}, {"arcturus", "void"}, {"castor", "void"},
		},
	}
}

// NewInitialBoard returns the opening position for a map: every home node is
// owned by its faction, the last home node of each faction starts with a mobile
// unit in orbit and every other home node with a ground unit on the surface.
func NewInitialBoard(t *Topology) *Board {
	b := NewBoard()
	b.Year = 1
	b.Season = Spring
	b.Phase = PhaseMovement
	for _, n := range t.SupplyCenters() {
		b.Ownership[n] = Neutral
	}
	for _, f := range t.Factions() {
		homes := t.HomeNodes(f)
		for i, n := range homes {
			if t.IsSupplyCenter(n) {
				b.Ownership[n] = f
			}
			if i == len(homes)-1 {
				b.Place(OrbitPos(n), Unit{Owner: f, Kind: Mobile})
			} else {
				b.Place(NodePos(n), Unit{Owner: f, Kind: Ground})
			}
		}
	}
	return b
}
