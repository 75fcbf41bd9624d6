/*
Package testutil provides fixtures for testing the coordination stack.

The package centers on an in-memory certificate authority used to
exercise the mutual-TLS paths without checked-in key material. Tests can
issue server and client certificates directly as tls.Certificate values
or materialize them as PEM files for the configuration loaders.

	ca, _ := testutil.NewCertificateAuthority()

	// In-memory, for tls.Config plumbing
	serverCert, _ := ca.IssueServer("127.0.0.1")
	clientCert, _ := ca.IssueClient("site_a")

	// On disk, for config file loaders
	certFile, keyFile, rootFile, _ := ca.WriteServerFiles(dir, "127.0.0.1")

All issued certificates are short-lived and chain to the generated CA
only, so nothing produced here is usable outside the test process.
*/
package testutil
