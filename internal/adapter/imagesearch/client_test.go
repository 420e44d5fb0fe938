package imagesearch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// pngBytes is a 1x1 transparent PNG.
var pngBytes, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

type fakeSite struct {
	t           *testing.T
	srv         *httptest.Server
	pageStatus  []int
	pageCalls   int32
	imageCalls  int32
	mu          sync.Mutex
	lastPath    string
	referers    []string
	userAgents  []string
	html        func(base string) string
	imageStatus int
	imageBody   []byte
	imageType   string
}

func newFakeSite(t *testing.T) *fakeSite {
	fs := &fakeSite{t: t, imageStatus: http.StatusOK, imageBody: pngBytes, imageType: "image/png"}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/search/") {
		n := int(atomic.AddInt32(&fs.pageCalls, 1))
		fs.mu.Lock()
		fs.lastPath = r.URL.EscapedPath()
		fs.userAgents = append(fs.userAgents, r.UserAgent())
		fs.mu.Unlock()
		if n <= len(fs.pageStatus) && fs.pageStatus[n-1] != http.StatusOK {
			w.WriteHeader(fs.pageStatus[n-1])
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fs.html(fs.srv.URL)))
		return
	}
	atomic.AddInt32(&fs.imageCalls, 1)
	fs.mu.Lock()
	fs.referers = append(fs.referers, r.Referer())
	fs.mu.Unlock()
	if fs.imageStatus != http.StatusOK {
		w.WriteHeader(fs.imageStatus)
		return
	}
	if fs.imageType != "" {
		w.Header().Set("Content-Type", fs.imageType)
	}
	_, _ = w.Write(fs.imageBody)
}

func threeImages(base string) string {
	return fmt.Sprintf(`<html><body>
<img src="/Public/logo.png" alt="logo">
<div class="searchbqppdiv"><img class="ui image lazy" data-original="%[1]s/img/1.png" src="/Public/lazy.gif" title="老铁没毛病"></div>
<div class="searchbqppdiv"><img class="ui image lazy" data-original="%[1]s/img/2.png" src="/Public/lazy.gif" alt=""></div>
<div class="searchbqppdiv"><img src="%[1]s/img/3.png" alt="第三张"></div>
<div class="searchbqppdiv"><img src="%[1]s/img/4.png" alt="第四张"></div>
</body></html>`, base)
}

func newTestClient(fs *fakeSite) *Client {
	cfg := config.Config{
		AppEnv:                 "test",
		EmoticonSourceURL:      fs.srv.URL,
		EmoticonUserAgent:      "test-agent",
		EmoticonPageTimeout:    2 * time.Second,
		EmoticonImageTimeout:   2 * time.Second,
		EmoticonPageAttempts:   3,
		EmoticonMaxResults:     3,
		EmoticonInlineMaxBytes: 102400,
	}
	return New(cfg)
}

func TestSearch_EmptyKeywordMakesNoRequest(t *testing.T) {
	fs := newFakeSite(t)
	c := newTestClient(fs)

	res, err := c.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, atomic.LoadInt32(&fs.pageCalls))
}

func TestSearch_ParsesPageInOrderAndInlinesSmallImages(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	c := newTestClient(fs)

	res, err := c.Search(context.Background(), "老铁 没毛病")
	require.NoError(t, err)
	require.Len(t, res, 3, "results are capped at three")

	wantURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	for _, r := range res {
		assert.Equal(t, wantURI, r.URL)
		assert.True(t, r.IsInline())
	}
	assert.Equal(t, "老铁没毛病", res[0].Alt, "title is used when alt is missing")
	assert.Equal(t, "老铁 没毛病", res[1].Alt, "label defaults to the keyword")
	assert.Equal(t, "第三张", res[2].Alt)

	assert.Equal(t, "/search/bqb/keyword/%E8%80%81%E9%93%81%20%E6%B2%A1%E6%AF%9B%E7%97%85/type/bq/page/1.html", fs.lastPath)
	assert.EqualValues(t, 3, atomic.LoadInt32(&fs.imageCalls))
	for _, ref := range fs.referers {
		assert.Equal(t, fs.srv.URL+"/", ref)
	}
	assert.Equal(t, "test-agent", fs.userAgents[0])
}

func TestSearch_LargeImageStaysRemote(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	fs.imageBody = bytes.Repeat([]byte{0x89}, 2048)
	c := newTestClient(fs)
	c.inlineMax = 1024

	res, err := c.Search(context.Background(), "kw")
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, fs.srv.URL+"/img/1.png", res[0].URL)
	assert.False(t, res[0].IsInline())
}

func TestSearch_ImageAtThresholdStaysRemote(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	c := newTestClient(fs)
	c.inlineMax = int64(len(pngBytes))

	res, err := c.Search(context.Background(), "kw")
	require.NoError(t, err)
	assert.False(t, res[0].IsInline())

	c.inlineMax = int64(len(pngBytes)) + 1
	res, err = c.Search(context.Background(), "kw")
	require.NoError(t, err)
	assert.True(t, res[0].IsInline())
}

func TestSearch_FailedImageDegradesToRemoteURL(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	fs.imageStatus = http.StatusForbidden
	c := newTestClient(fs)

	res, err := c.Search(context.Background(), "kw")
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, fs.srv.URL+"/img/1.png", res[0].URL)
	assert.Equal(t, fs.srv.URL+"/img/3.png", res[2].URL)
}

func TestSearch_SniffsContentTypeWhenHeaderIsGeneric(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	fs.imageType = "application/octet-stream"
	c := newTestClient(fs)

	res, err := c.Search(context.Background(), "kw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res[0].URL, "data:image/png;base64,"), res[0].URL)
}

func TestSearch_NonImagePayloadDegrades(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	fs.imageType = "text/html"
	fs.imageBody = []byte("<html>blocked</html>")
	c := newTestClient(fs)

	res, err := c.Search(context.Background(), "kw")
	require.NoError(t, err)
	assert.Equal(t, fs.srv.URL+"/img/1.png", res[0].URL)
}

func TestSearch_RetriesOnUnavailableThenMatchesImmediateSuccess(t *testing.T) {
	flaky := newFakeSite(t)
	flaky.html = threeImages
	flaky.pageStatus = []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK}

	steady := newFakeSite(t)
	steady.html = threeImages

	got, err := newTestClient(flaky).Search(context.Background(), "kw")
	require.NoError(t, err)
	want, err := newTestClient(steady).Search(context.Background(), "kw")
	require.NoError(t, err)

	assert.EqualValues(t, 3, atomic.LoadInt32(&flaky.pageCalls))
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Alt, got[i].Alt)
		assert.Equal(t, strings.Replace(want[i].URL, steady.srv.URL, flaky.srv.URL, 1), got[i].URL)
	}
}

func TestSearch_GivesUpAfterThreeAttempts(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	fs.pageStatus = []int{503, 503, 503, 503}
	c := newTestClient(fs)

	_, err := c.Search(context.Background(), "kw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
	assert.EqualValues(t, 3, atomic.LoadInt32(&fs.pageCalls))
}

func TestSearch_OtherStatusIsNotRetried(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	fs.pageStatus = []int{http.StatusNotFound}
	c := newTestClient(fs)

	_, err := c.Search(context.Background(), "kw")
	require.ErrorIs(t, err, domain.ErrUpstreamFailed)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fs.pageCalls))
}

func TestSearch_NoImagesIsAMiss(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = func(string) string { return `<html><body><img src="/relative.png"><img data-original="data:image/gif;base64,AA=="></body></html>` }
	c := newTestClient(fs)

	res, err := c.Search(context.Background(), "kw")
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, atomic.LoadInt32(&fs.imageCalls))
}

func TestSearch_DelayBetweenImagesSkipsFirst(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	c := newTestClient(fs)
	c.retry.ImageDelay = 500 * time.Millisecond
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := c.Search(context.Background(), "kw")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, slept)
}

func TestSearch_CancelledDuringDelay(t *testing.T) {
	fs := newFakeSite(t)
	fs.html = threeImages
	c := newTestClient(fs)
	c.retry.ImageDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Search(ctx, "kw")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://img.example.com/a.gif", "https://img.example.com/a.gif", true},
		{"HTTP://img.example.com/a.gif", "HTTP://img.example.com/a.gif", true},
		{"//img.example.com/a.gif", "https://img.example.com/a.gif", true},
		{"/relative/a.gif", "", false},
		{"data:image/png;base64,AAAA", "", false},
		{"//", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := absoluteURL(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLinearBackOff(t *testing.T) {
	b := newLinearBackOff(time.Second)
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}
