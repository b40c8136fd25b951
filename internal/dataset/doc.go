// Package dataset loads the nutrition, physical activity and obesity survey
// table that the statistical tasks operate on, together with the question
// catalog that says which direction of each question counts as better.
// A loaded Dataset is read-only and safe for concurrent use.
package dataset
