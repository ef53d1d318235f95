// Package backend is the HTTP/JSON client for the sensor backend API.
//
// Requests are synchronous with a per-request timeout. Failures fall into
// three classes callers can test with errors.Is:
//
//   - ErrUnreachable: the request never got an answer (network, timeout)
//   - ErrRejected: the backend answered with a status other than 200
//   - ErrInvalidResponse: a 200 whose body is not the expected JSON
//
// There are no retries; callers decide when to try again.
//
//	client, err := backend.New(backend.Options{BaseURL: cfg.Backend.URL, Timeout: 5 * time.Second})
//	var items []Item
//	err = client.GetJSON(ctx, "/esp/sensor/byespname", url.Values{"name": {"esp001"}}, &items)
package backend
