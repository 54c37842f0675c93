// Package anonymizer is the boundary to the external anonymization and
// synthetic data library.
//
// csvanon does not implement any transform or synthetic model. It builds
// a Client from Settings and calls Client.Anonymize with the path of the
// uploaded dataset. The library writes "<stem>-synthetic_data.csv" and
// "<stem>-anonymization_report.html" into the artifacts directory as a
// side effect; the Result only says whether the call succeeded.
//
// CommandClient drives the gdpr-helpers Python package through an
// embedded bridge script run by a CommandRunner. ClientFunc adapts a
// plain function and is used by tests and by callers that embed csvanon
// with their own collaborator.
package anonymizer
