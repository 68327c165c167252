package archive

// S3 talks to a real S3-compatible endpoint; nothing in this package mocks
// AWS request signing or network transport, so behavioral coverage lives in
// fs_test.go and memory_test.go against the two backends that are exercised
// here. This just pins the interface contract at compile time.
var _ Store = (*S3)(nil)
