package common

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    *Request
		wantErr string
	}{
		{
			name: "set",
			line: `{"command":"SET","user_id":"u","key":"k","value":5}`,
			want: NewSetRequest("u", "k", 5),
		},
		{
			name: "set zero value",
			line: `{"command":"SET","user_id":"u","key":"k","value":0}`,
			want: NewSetRequest("u", "k", 0),
		},
		{
			name: "hi without id",
			line: `{"command":"HI"}`,
			want: NewHiRequest(""),
		},
		{
			name: "hi with id",
			line: `{"command":"HI","user_id":"abc"}` + "\n",
			want: NewHiRequest("abc"),
		},
		{
			name: "range",
			line: `{"command":"RANGE","user_id":"u","start":"a","end":"c"}`,
			want: NewRangeRequest("u", "a", "c"),
		},
		{name: "not json", line: `hello`, wantErr: "invalid request"},
		{name: "empty", line: ``, wantErr: "invalid request"},
		{name: "missing command", line: `{"user_id":"u"}`, wantErr: `missing field "command"`},
		{name: "unknown command", line: `{"command":"FLY","user_id":"u"}`, wantErr: `unknown command "FLY"`},
		{name: "set without value", line: `{"command":"SET","user_id":"u","key":"k"}`, wantErr: `requires field "value"`},
		{name: "get without user", line: `{"command":"GET","key":"k"}`, wantErr: `requires field "user_id"`},
		{name: "range without end", line: `{"command":"RANGE","user_id":"u","start":"a"}`, wantErr: `requires field "end"`},
		{name: "negative value", line: `{"command":"SET","user_id":"u","key":"k","value":-1}`, wantErr: "invalid request"},
		{name: "unknown field", line: `{"command":"PING","user_id":"u","extra":1}`, wantErr: "invalid request"},
		{name: "two objects", line: `{"command":"PING","user_id":"u"}{"command":"PING","user_id":"u"}`, wantErr: "trailing data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.line))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				require.True(t, errors.Is(err, ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRequest(t *testing.T) {
	data, err := EncodeRequest(NewGetRequest("u", "k"))
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"GET","user_id":"u","key":"k"}`, string(data))

	data, err = EncodeRequest(NewHiRequest(""))
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"HI"}`, string(data))
}

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{"hi", NewHiResponse("id-1", nil), `{"user_id":"id-1"}`},
		{"ping", NewPingResponse("Server Running!", nil), `{"response":"Server Running!"}`},
		{"ack", NewAckResponse(nil), `{"Ok":null}`},
		{"get found", NewGetResponse(5, true, nil), `{"Ok":5}`},
		{"get missing", NewGetResponse(0, false, nil), `{"Ok":null}`},
		{"get max", NewGetResponse(^uint64(0), true, nil), `{"Ok":18446744073709551615}`},
		{"list empty", NewEntriesResponse(nil, nil), `{"Ok":[]}`},
		{
			"list",
			NewEntriesResponse([]command.Entry{{UserID: "u", Key: "a", Value: 1}, {UserID: "u", Key: "b", Value: 2}}, nil),
			`{"Ok":[[["u","a"],1],[["u","b"],2]]}`,
		},
		{"error", NewAckResponse(errors.New("boom")), `{"Err":"boom"}`},
		{"hi error", NewHiResponse("", errors.New("boom")), `{"Err":"boom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.JSONEq(t, tt.want, string(EncodeResponse(tt.resp)))
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"Ok":7}`))
		require.NoError(t, err)
		v, found, err := resp.OkValue()
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(7), v)
	})

	t.Run("get missing", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"Ok":null}`))
		require.NoError(t, err)
		_, found, err := resp.OkValue()
		require.NoError(t, err)
		require.False(t, found)
		require.NoError(t, resp.OkAck())
	})

	t.Run("entries", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"Ok":[[["u","a"],1],[["u","b"],2]]}`))
		require.NoError(t, err)
		entries, err := resp.OkEntries()
		require.NoError(t, err)
		require.Equal(t, []command.Entry{{UserID: "u", Key: "a", Value: 1}, {UserID: "u", Key: "b", Value: 2}}, entries)
	})

	t.Run("error", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"Err":"nope"}`))
		require.NoError(t, err)
		require.EqualError(t, resp.OkAck(), "nope")
		_, err = resp.OkEntries()
		require.EqualError(t, err, "nope")
	})

	t.Run("missing ok", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"user_id":"x"}`))
		require.NoError(t, err)
		require.Error(t, resp.OkAck())
		require.Equal(t, "x", *resp.UserID)
	})

	t.Run("malformed entry", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"Ok":[["u",1]]}`))
		require.NoError(t, err)
		_, err = resp.OkEntries()
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeResponse([]byte(`nope`))
		require.Error(t, err)
	})
}

func TestServerConfigValidate(t *testing.T) {
	valid := DefaultServerConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(c *ServerConfig)
	}{
		{"bad transport", func(c *ServerConfig) { c.Transport.Type = "carrier-pigeon" }},
		{"no endpoint", func(c *ServerConfig) { c.Transport.Endpoint = "" }},
		{"no data dir", func(c *ServerConfig) { c.DataDir = "" }},
		{"shared admin endpoint", func(c *ServerConfig) { c.AdminEndpoint = c.Transport.Endpoint }},
		{"negative interval", func(c *ServerConfig) { c.SnapshotIntervalSecond = -1 }},
		{"bad compression", func(c *ServerConfig) { c.SnapshotCompression = "lz4" }},
		{"cert without key", func(c *ServerConfig) { c.Transport.CertFile = "cert.pem" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultServerConfig()
			tt.modify(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "ERROR"} {
		_, err := ParseLogLevel(level)
		require.NoError(t, err, level)
	}
	_, err := ParseLogLevel("verbose")
	require.Error(t, err)
}
