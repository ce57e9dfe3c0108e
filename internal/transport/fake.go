package transport

// FakeRequest records the parameters of a Send call.
type FakeRequest struct {
	Method      string
	URL         string
	ContentType string
	Body        string
	Headers     map[string]string
}

// FakeClient is a test double that returns scripted results.
// Callbacks are invoked synchronously from Send.
type FakeClient struct {
	// Results contains scripted results to return, consumed in order.
	// If exhausted, the last result is returned repeatedly.
	Results []Result

	// Requests records every Send call in order.
	Requests []FakeRequest

	// SendError, if set, will be returned by Send without invoking
	// the callback.
	SendError error

	// Busy simulates an in-flight request: Send returns ErrBusy.
	Busy bool

	index int
}

// NewFakeClient creates a FakeClient with the given scripted results.
func NewFakeClient(results ...Result) *FakeClient {
	return &FakeClient{Results: results}
}

// Send records the request and invokes cb with the next scripted result.
func (f *FakeClient) Send(method, url, contentType, body string, headers map[string]string, cb Callback) error {
	if f.Busy {
		return ErrBusy
	}
	if f.SendError != nil {
		return f.SendError
	}

	f.Requests = append(f.Requests, FakeRequest{
		Method:      method,
		URL:         url,
		ContentType: contentType,
		Body:        body,
		Headers:     headers,
	})

	if len(f.Results) == 0 {
		cb(Result{})
		return nil
	}

	result := f.Results[f.index]
	if f.index < len(f.Results)-1 {
		f.index++
	}
	cb(result)
	return nil
}

// OKJSON is a helper for scripting a successful JSON response.
func OKJSON(body string) Result {
	return Result{OK: true, Status: 200, Body: []byte(body)}
}

// Reset clears recorded requests and rewinds the script.
func (f *FakeClient) Reset() {
	f.Requests = nil
	f.index = 0
	f.SendError = nil
	f.Busy = false
}
