package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
)

func request() *Request {
	var board c4.Board
	return &Request{
		Board:         &board,
		CurrentPlayer: c4.PlayerOne,
		ValidMoves:    board.LegalMoves(),
	}
}

func call(t *testing.T, handler http.HandlerFunc, deadline time.Duration) (int, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	return MakeRemote(srv.URL).Move(ctx, request())
}

func kind(t *testing.T, err error) FailureKind {
	t.Helper()
	var f *Failure
	require.ErrorAs(t, err, &f)
	return f.Kind
}

func TestMoveOk(t *testing.T) {
	move, err := call(t, func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, c4.PlayerOne, req.CurrentPlayer)
		assert.Len(t, req.ValidMoves, c4.Cols)

		json.NewEncoder(w).Encode(map[string]int{"move": 4})
	}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 4, move)
}

func TestMoveTimeout(t *testing.T) {
	_, err := call(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]int{"move": 0})
	}, 50*time.Millisecond)

	assert.Equal(t, Timeout, kind(t, err))
}

func TestMoveTransport(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		_, err := call(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "agent exploded", http.StatusInternalServerError)
		}, time.Second)
		assert.Equal(t, Transport, kind(t, err))
	})

	t.Run("refused", func(t *testing.T) {
		srv := httptest.NewServer(nil)
		endpoint := srv.URL
		srv.Close() // nothing listens here any more

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := MakeRemote(endpoint).Move(ctx, request())
		assert.Equal(t, Transport, kind(t, err))
	})
}

func TestMoveMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":  "pick column three please",
		"no move":   `{"column": 3}`,
		"bad type":  `{"move": "three"}`,
		"null move": `{"move": null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := call(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}, time.Second)
			assert.Equal(t, Malformed, kind(t, err))
		})
	}
}

func TestMoveIllegal(t *testing.T) {
	for _, move := range []int{-1, 7, 42} {
		_, err := call(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]int{"move": move})
		}, time.Second)
		assert.Equalf(t, Illegal, kind(t, err), "move %d", move)
	}
}

func TestMoveFullColumnIllegal(t *testing.T) {
	// Column 2 is full; an agent naming it anyway loses the turn
	var board c4.Board
	for i := 0; i < c4.Rows; i++ {
		p := c4.PlayerOne
		if i%2 == 1 {
			p = c4.PlayerTwo
		}
		_, err := board.Drop(2, p)
		require.NoError(t, err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"move": 2})
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := MakeRemote(srv.URL).Move(ctx, &Request{
		Board:         &board,
		CurrentPlayer: c4.PlayerOne,
		ValidMoves:    board.LegalMoves(),
	})
	assert.Equal(t, Illegal, kind(t, err))
}

func TestFailureUnwrap(t *testing.T) {
	inner := errors.New("inner")
	f := fail(Transport, inner)
	assert.ErrorIs(t, f, inner)
	assert.Equal(t, "transport: inner", f.Error())
}
