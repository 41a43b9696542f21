package shell

import (
	"sort"
	"testing"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/stretchr/testify/require"
)

// mapStore is an in-memory store.IStore for a single user
type mapStore struct {
	data   map[string]uint64
	exited bool
}

func (m *mapStore) Hi(userID string) (string, error)  { return userID, nil }
func (m *mapStore) Ping(string) (string, error)       { return store.PingResponse, nil }
func (m *mapStore) Delete(_ string, key string) error { delete(m.data, key); return nil }
func (m *mapStore) Exit(string) error                 { m.exited = true; return nil }

func (m *mapStore) Set(_ string, key string, value uint64) error {
	m.data[key] = value
	return nil
}

func (m *mapStore) Update(userID, key string, value uint64) error {
	return m.Set(userID, key, value)
}

func (m *mapStore) Get(_ string, key string) (uint64, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Range(userID, start, end string) ([]command.Entry, error) {
	var out []command.Entry
	all, _ := m.List(userID)
	for _, e := range all {
		if e.Key >= start && e.Key <= end {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mapStore) List(userID string) ([]command.Entry, error) {
	out := make([]command.Entry, 0, len(m.data))
	for k, v := range m.data {
		out = append(out, command.Entry{UserID: userID, Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func TestExecute(t *testing.T) {
	s := &mapStore{data: map[string]uint64{}}

	tests := []struct {
		line    string
		want    string
		wantErr bool
		quit    bool
	}{
		{line: "", want: ""},
		{line: "ping", want: store.PingResponse},
		{line: "SET b 2", want: "OK"},
		{line: "set a 1", want: "OK"},
		{line: "UPDATE c 3", want: "OK"},
		{line: "GET a", want: "1"},
		{line: "GET missing", want: "(nil)"},
		{line: "RANGE a b", want: "a = 1\nb = 2"},
		{line: "RANGE x y", want: "(empty)"},
		{line: "DEL b", want: "OK"},
		{line: "LIST", want: "a = 1\nc = 3"},
		{line: "SET a -1", wantErr: true},
		{line: "SET a", wantErr: true},
		{line: "FLY", wantErr: true},
		{line: "EXIT", want: "bye", quit: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out, quit, err := Execute(s, "u", tt.line)
			if tt.wantErr {
				require.ErrorIs(t, err, errUsage)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
			require.Equal(t, tt.quit, quit)
		})
	}
	require.True(t, s.exited)
}

func TestHelpListsAllCommands(t *testing.T) {
	out := help()
	for name, cmd := range shellCommands {
		require.Contains(t, out, cmd.usage, name)
	}
}
