package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Channel names as used by the decoders and exporters.
const (
	ChannelSPZ = "spz"
	ChannelLPX = "lpx"
	ChannelLPY = "lpy"
	ChannelLPZ = "lpz"
	ChannelLSG = "lsg"
	ChannelGP1 = "gp1"
	ChannelGP2 = "gp2"
	ChannelGP3 = "gp3"
	ChannelGP4 = "gp4"
)

var knownChannels = map[string]bool{
	ChannelSPZ: true, ChannelLPX: true, ChannelLPY: true, ChannelLPZ: true,
	ChannelLSG: true, ChannelGP1: true, ChannelGP2: true, ChannelGP3: true, ChannelGP4: true,
}

var knownStations = map[int]bool{11: true, 12: true, 14: true, 15: true, 16: true, 17: true}

// Entry maps one decoded channel of one Apollo station to SEED codes.
type Entry struct {
	Station    int
	Channel    string
	Network    string
	Code       string
	Location   string
	SEED       string
	SampleRate float64
}

type Store struct {
	entries  map[key]Entry
	stations map[int]bool
}

type key struct {
	station int
	channel string
}

type JSONFile struct {
	Channels []JSONEntry `json:"channels"`
}

type JSONEntry struct {
	Station    int     `json:"station"`
	Channel    string  `json:"channel"`
	Network    string  `json:"network"`
	Code       string  `json:"code"`
	Location   string  `json:"location"`
	SEED       string  `json:"seed"`
	SampleRate float64 `json:"sampleRate"`
}

func FromJSON(file JSONFile) (*Store, error) {
	store := &Store{
		entries:  make(map[key]Entry),
		stations: make(map[int]bool),
	}
	for i, e := range file.Channels {
		if !knownStations[e.Station] {
			return nil, fmt.Errorf("channels[%d]: unknown station %d", i, e.Station)
		}
		ch := strings.ToLower(strings.TrimSpace(e.Channel))
		if !knownChannels[ch] {
			return nil, fmt.Errorf("channels[%d]: unknown channel %q", i, e.Channel)
		}
		if n := len(e.Network); n < 1 || n > 2 {
			return nil, fmt.Errorf("channels[%d]: network code must be 1-2 characters", i)
		}
		if n := len(e.Code); n < 1 || n > 5 {
			return nil, fmt.Errorf("channels[%d]: station code must be 1-5 characters", i)
		}
		if len(e.Location) > 2 {
			return nil, fmt.Errorf("channels[%d]: location code longer than 2 characters", i)
		}
		if len(e.SEED) != 3 {
			return nil, fmt.Errorf("channels[%d]: seed channel must be 3 characters", i)
		}
		if e.SampleRate <= 0 {
			return nil, fmt.Errorf("channels[%d]: sample rate must be positive", i)
		}
		k := key{station: e.Station, channel: ch}
		if _, exists := store.entries[k]; exists {
			return nil, fmt.Errorf("channels[%d]: duplicate station/channel", i)
		}
		store.entries[k] = Entry{
			Station:    e.Station,
			Channel:    ch,
			Network:    strings.ToUpper(e.Network),
			Code:       strings.ToUpper(e.Code),
			Location:   e.Location,
			SEED:       strings.ToUpper(e.SEED),
			SampleRate: e.SampleRate,
		}
		store.stations[e.Station] = true
	}
	return store, nil
}

func (s *Store) Lookup(station int, channel string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.entries[key{station: station, channel: strings.ToLower(channel)}]
	return e, ok
}

func (s *Store) HasStation(station int) bool {
	if s == nil {
		return false
	}
	return s.stations[station]
}

func (s *Store) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.entries) == 0
}

// Entries returns every entry ordered by station then channel.
func (s *Store) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Station != out[j].Station {
			return out[i].Station < out[j].Station
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}
