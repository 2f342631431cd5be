// Package library exposes the backend's typed endpoints: authentication, the PDF
// catalogue, document detail, signed page URLs and in-document search.
//
// Responses are decoded in up to three stages. A body that fails strict decoding
// and validation is normalized (field aliases and documented defaults), then
// weakly coerced (numeric strings, numeric ids, single tags). A body that still
// fails is reported as an *apiclient.APIError carrying the validation diagnostics.
package library
