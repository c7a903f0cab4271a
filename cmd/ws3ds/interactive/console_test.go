package interactive

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	fcolor "github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/session"
)

type fakeClient struct {
	state    session.State
	startErr error
	sendErr  error
	starts   []session.StartOptions
	texts    []string
	images   []image.Image
	failures chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{failures: make(chan error, 1)}
}

func (f *fakeClient) Start(_ context.Context, opts session.StartOptions) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, opts)
	f.state = session.StateSearching
	return nil
}

func (f *fakeClient) Cancel() {
	if f.state == session.StateSearching {
		f.state = session.StateCanceled
	}
}

func (f *fakeClient) Status() session.Status {
	st := session.Status{State: f.state}
	if f.state == session.StateConnected {
		st.Address = discovery.Address{Host: "192.168.1.42", Port: discovery.DefaultPort}
		st.SearchID = "search-1"
		st.Since = time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	}
	return st
}

func (f *fakeClient) Failures() <-chan error { return f.failures }

func (f *fakeClient) SendText(text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeClient) SendImage(img image.Image) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.images = append(f.images, img)
	return nil
}

func setup(t *testing.T) (*Console, *fakeClient, *bytes.Buffer) {
	t.Helper()
	fcolor.NoColor = true
	client := newFakeClient()
	var out bytes.Buffer
	return newConsole(client, session.StartOptions{}, &out), client, &out
}

func TestConsole_Search(t *testing.T) {
	c, client, out := setup(t)
	ctx := context.Background()

	assert.True(t, c.Exec(ctx, "search"))
	assert.Contains(t, out.String(), "Searching local subnet")

	client.state = session.StateIdle
	assert.True(t, c.Exec(ctx, "search 192.168.1.42"))
	require.Len(t, client.starts, 2)
	assert.Equal(t, "", client.starts[0].Host)
	assert.Equal(t, "192.168.1.42", client.starts[1].Host)
}

func TestConsole_SearchUnresolved(t *testing.T) {
	c, client, out := setup(t)
	client.startErr = discovery.ErrUnresolved

	c.Exec(context.Background(), "search")
	assert.Contains(t, out.String(), "Error: local address unresolved")
	assert.Contains(t, out.String(), "search <host>")
}

func TestConsole_CancelAndStatus(t *testing.T) {
	c, client, out := setup(t)
	ctx := context.Background()

	c.Exec(ctx, "search")
	c.Exec(ctx, "cancel")
	assert.Contains(t, out.String(), "State:   CANCELED")

	out.Reset()
	client.state = session.StateConnected
	c.Exec(ctx, "status")
	assert.Contains(t, out.String(), "Device:  192.168.1.42:5050")
	assert.Contains(t, out.String(), "Search:  search-1")
}

func TestConsole_Text(t *testing.T) {
	c, client, out := setup(t)
	ctx := context.Background()

	c.Exec(ctx, "text")
	assert.Contains(t, out.String(), "Usage: text")

	c.Exec(ctx, "text hello there 3ds")
	assert.Equal(t, []string{"hello there 3ds"}, client.texts)

	client.sendErr = session.ErrNotConnected
	out.Reset()
	c.Exec(ctx, "t again")
	assert.Contains(t, out.String(), "Error: not connected")
}

func TestConsole_Image(t *testing.T) {
	c, client, out := setup(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "pic.png")
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	c.Exec(ctx, "image "+path)
	require.Len(t, client.images, 1)
	assert.Contains(t, out.String(), "sent 20x10 image as 400x240 frame")

	out.Reset()
	c.Exec(ctx, "image "+filepath.Join(t.TempDir(), "missing.png"))
	assert.Contains(t, out.String(), "Error:")
	assert.Len(t, client.images, 1)
}

func TestConsole_QuitAndUnknown(t *testing.T) {
	c, _, out := setup(t)
	ctx := context.Background()

	assert.True(t, c.Exec(ctx, "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")
	assert.False(t, c.Exec(ctx, "quit"))
	assert.False(t, c.Exec(ctx, "Q"))
}

func TestConsole_Notify(t *testing.T) {
	c, _, out := setup(t)
	c.Notify(session.StateSearching, session.StateConnected)
	assert.Equal(t, "SEARCHING -> CONNECTED\n", out.String())
}

func TestConsole_WatchFailures(t *testing.T) {
	c, client, out := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.watchFailures(ctx)
		close(done)
	}()
	client.failures <- session.ErrSearchTimeout
	require.Eventually(t, func() bool { return len(client.failures) == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Contains(t, out.String(), "Error: "+session.ErrSearchTimeout.Error())
}
