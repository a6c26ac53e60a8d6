package browsermanager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auxproto/auxd/internal/driver"
	"github.com/auxproto/auxd/internal/schema"
)

func newCommandTestManager(t *testing.T) (*Manager, *driver.FakeBrowser, string) {
	t.Helper()
	fd := driver.NewFakeDriver()
	m := New(fd, nil, nil, DefaultOptions())
	require.NoError(t, m.Initialize(context.Background()))

	id, err := m.CreateSession(context.Background(), nil, "127.0.0.1:1")
	require.NoError(t, err)
	return m, fd.Browser, id
}

func baseHeader(sessionID string) schema.Header {
	return schema.Header{ID: "cmd-1", SessionID: sessionID, TimeoutMs: 5000}
}

func TestExecuteNavigateSuccess(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Title: "Example Domain"})

	resp, cmdErr := m.ExecuteNavigate(context.Background(), "client-1", schema.NavigateCommand{
		Header: baseHeader(sessionID), URL: "https://example.com/", WaitUntil: "load",
	})
	require.Nil(t, cmdErr)
	nav := resp.(*schema.NavigateResponse)
	require.Equal(t, "https://example.com/", nav.URL)
	require.Equal(t, "Example Domain", nav.Title)
	require.False(t, nav.Redirected)
}

func TestExecuteNavigateSessionNotFound(t *testing.T) {
	m, _, _ := newCommandTestManager(t)
	_, cmdErr := m.ExecuteNavigate(context.Background(), "client-1", schema.NavigateCommand{
		Header: baseHeader("no-such-session"), URL: "https://example.com/", WaitUntil: "load",
	})
	require.NotNil(t, cmdErr)
	require.Equal(t, schema.ErrSessionNotFound, cmdErr.Code)
}

func TestExecuteNavigateTimeout(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://slow.example/", &driver.FakeSite{Title: "slow"})

	sess, _ := m.Get(sessionID)
	sess.Page.(*driver.FakePage).NavigateDelay = time.Hour

	_, cmdErr := m.ExecuteNavigate(context.Background(), "client-1", schema.NavigateCommand{
		Header: schema.Header{ID: "cmd-1", SessionID: sessionID, TimeoutMs: 50}, URL: "https://slow.example/", WaitUntil: "load",
	})
	require.NotNil(t, cmdErr)
	require.Equal(t, schema.ErrTimeout, cmdErr.Code)
}

func TestExecuteClickElementNotFound(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: nil})
	navigateTo(t, m, sessionID, "https://example.com/")

	_, cmdErr := m.ExecuteClick(context.Background(), "client-1", schema.ClickCommand{
		Header: baseHeader(sessionID), Selector: "#missing", Button: "left", ClickCount: 1,
	})
	require.NotNil(t, cmdErr)
	require.Equal(t, schema.ErrElementNotFound, cmdErr.Code)
}

func TestExecuteClickSuccess(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: []*driver.FakeElement{
		{ID: "submit", Tag: "button", Text: "Go", Visible: true, Box: driver.BoundingBox{X: 10, Y: 10, Width: 20, Height: 10}},
	}})
	navigateTo(t, m, sessionID, "https://example.com/")

	resp, cmdErr := m.ExecuteClick(context.Background(), "client-1", schema.ClickCommand{
		Header: baseHeader(sessionID), Selector: "#submit", Button: "left", ClickCount: 1,
	})
	require.Nil(t, cmdErr)
	click := resp.(*schema.ClickResponse)
	require.True(t, click.ElementFound)
	require.True(t, click.ElementVisible)
	require.Equal(t, "button", click.ElementTag)
}

func TestExecuteClickNotVisibleWithoutForce(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: []*driver.FakeElement{
		{ID: "hidden", Tag: "div", Visible: false},
	}})
	navigateTo(t, m, sessionID, "https://example.com/")

	_, cmdErr := m.ExecuteClick(context.Background(), "client-1", schema.ClickCommand{
		Header: baseHeader(sessionID), Selector: "#hidden", Button: "left", ClickCount: 1,
	})
	require.NotNil(t, cmdErr)
	require.Equal(t, schema.ErrElementNotVisible, cmdErr.Code)
}

func TestExecuteFillSuccess(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: []*driver.FakeElement{
		{ID: "email", Tag: "input", Visible: true, Value: "old@example.com"},
	}})
	navigateTo(t, m, sessionID, "https://example.com/")

	resp, cmdErr := m.ExecuteFill(context.Background(), "client-1", schema.FillCommand{
		Header: baseHeader(sessionID), Selector: "#email", Text: "new@example.com", ClearFirst: true, ValidateInput: true,
	})
	require.Nil(t, cmdErr)
	fill := resp.(*schema.FillResponse)
	require.Equal(t, "old@example.com", fill.PreviousValue)
	require.Equal(t, "new@example.com", fill.CurrentValue)
	require.True(t, fill.ValidationPassed)
}

func TestExecuteExtractTextSingle(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: []*driver.FakeElement{
		{ID: "headline", Tag: "h1", Text: "  Hello World  "},
	}})
	navigateTo(t, m, sessionID, "https://example.com/")

	resp, cmdErr := m.ExecuteExtract(context.Background(), "client-1", schema.ExtractCommand{
		Header: baseHeader(sessionID), Selector: "#headline", ExtractType: "text", TrimWhitespace: true,
	})
	require.Nil(t, cmdErr)
	extract := resp.(*schema.ExtractResponse)
	require.Equal(t, 1, extract.ElementsFound)
	require.Equal(t, "Hello World", extract.Data)
}

func TestExecuteExtractMultiple(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: []*driver.FakeElement{
		{Tag: "li", Text: "one"},
		{Tag: "li", Text: "two"},
	}})
	navigateTo(t, m, sessionID, "https://example.com/")

	resp, cmdErr := m.ExecuteExtract(context.Background(), "client-1", schema.ExtractCommand{
		Header: baseHeader(sessionID), Selector: "li", ExtractType: "text", Multiple: true,
	})
	require.Nil(t, cmdErr)
	extract := resp.(*schema.ExtractResponse)
	require.Equal(t, 2, extract.ElementsFound)
	require.Len(t, extract.Data, 2)
}

func TestExecuteExtractMultiplePartialFailureKeepsIndexAlignment(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: []*driver.FakeElement{
		{Tag: "li", Text: "one"},
		{Tag: "li", ExtractErr: fmt.Errorf("boom")},
		{Tag: "li", Text: "three"},
	}})
	navigateTo(t, m, sessionID, "https://example.com/")

	resp, cmdErr := m.ExecuteExtract(context.Background(), "client-1", schema.ExtractCommand{
		Header: baseHeader(sessionID), Selector: "li", ExtractType: "text", Multiple: true,
	})
	require.Nil(t, cmdErr)
	extract := resp.(*schema.ExtractResponse)
	require.Equal(t, 3, extract.ElementsFound)
	data, ok := extract.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, data, 3)
	require.Len(t, extract.ElementInfo, 3)
	require.Equal(t, "one", data[0])
	require.Equal(t, "", data[1])
	require.Equal(t, "three", data[2])
	require.Empty(t, extract.ElementInfo[0].Error)
	require.NotEmpty(t, extract.ElementInfo[1].Error)
	require.Empty(t, extract.ElementInfo[2].Error)
}

func TestExecuteWaitVisibleSuccess(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{Elements: []*driver.FakeElement{
		{ID: "spinner", Tag: "div", Visible: true},
	}})
	navigateTo(t, m, sessionID, "https://example.com/")

	resp, cmdErr := m.ExecuteWait(context.Background(), "client-1", schema.WaitCommand{
		Header: baseHeader(sessionID), Condition: "visible", Selector: "#spinner", PollIntervalMs: 50,
	})
	require.Nil(t, cmdErr)
	wait := resp.(*schema.WaitResponse)
	require.True(t, wait.ConditionMet)
	require.Equal(t, 1, *wait.ElementCount)
}

func TestExecuteWaitTimeout(t *testing.T) {
	m, browser, sessionID := newCommandTestManager(t)
	browser.RegisterSite("https://example.com/", &driver.FakeSite{})
	navigateTo(t, m, sessionID, "https://example.com/")

	_, cmdErr := m.ExecuteWait(context.Background(), "client-1", schema.WaitCommand{
		Header: schema.Header{ID: "cmd-1", SessionID: sessionID, TimeoutMs: 100}, Condition: "visible", Selector: "#never", PollIntervalMs: 50,
	})
	require.NotNil(t, cmdErr)
	require.Equal(t, schema.ErrWaitTimeout, cmdErr.Code)
}

func navigateTo(t *testing.T, m *Manager, sessionID, url string) {
	t.Helper()
	_, cmdErr := m.ExecuteNavigate(context.Background(), "client-1", schema.NavigateCommand{
		Header: baseHeader(sessionID), URL: url, WaitUntil: "load",
	})
	require.Nil(t, cmdErr)
}
