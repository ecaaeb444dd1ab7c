// Package mockenvtest runs mock environments inside Go tests.
//
// Build routes with a fluent API, or load an environment document, then
// point the code under test at the returned URL:
//
//	func TestClient(t *testing.T) {
//	    mock := mockenvtest.New(t)
//	    mock.Route("GET", "users/:id").
//	        WithJSON(map[string]string{"id": "{{urlParam 'id'}}"}).
//	        Reply()
//	    mock.Route("POST", "users").
//	        WithStatus(401).When(environment.TargetHeader, "Authorization", environment.OpNull, "").
//	        Otherwise().WithStatus(201).
//	        Reply()
//
//	    url := mock.Start()
//	    // ... exercise the client against url ...
//	    mock.AssertCalledTimes(t, "GET", "/users/{id}", 1)
//	}
//
// Routes added after Start are served immediately; the run restarts, so
// globals, data buckets and sequences are reset. The server stops when the
// test ends.
package mockenvtest
