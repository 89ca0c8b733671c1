// Package controlplane is the HTTP client for the storage control plane and
// primary control-plane API. It implements upload.CredentialIssuer and
// upload.InlineUploader.
package controlplane
