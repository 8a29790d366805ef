// Package devpi provides a typed HTTP client for the devpi server API.
//
// # Overview
//
// This package wraps the devpi server's JSON API for user, index,
// project/package, and token management. Every operation validates its
// inputs, issues the request through a single pipeline that maps transport
// failures and HTTP statuses to structured errors, and normalizes the
// server's loosely shaped payloads into stable typed records.
//
// # Usage
//
//	client, err := devpi.New(devpi.Config{
//	    BaseURL:  "http://localhost:3141",
//	    Username: "admin",
//	    Password: "secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	users, err := client.User.List(ctx)
//	idx, err := client.Index.Create(ctx, "admin", "dev", nil)
//
// # Response envelopes
//
// devpi wraps many responses in a {"result": ..., "type": ...} envelope and
// returns others bare. All normalizers accept both shapes transparently.
// Identifiers the server omits from payloads (the owning user of an index,
// the ID of a token) are injected from the call context during parsing, so
// returned records are always fully populated.
//
// # Errors
//
// All failures are reported as *errors.Error values with a machine-readable
// code; see github.com/devpi-tools/devpi-client/pkg/errors. HTTP-derived
// errors carry the status code and the parsed response body.
//
// # Concurrency
//
// Operations are synchronous and the client performs no background work.
// Methods may be called from multiple goroutines, with one exception: the
// authentication state (SetToken, SetBasic, Logout) is single-owner. Do not
// mutate credentials while another call on the same client is in flight.
package devpi
