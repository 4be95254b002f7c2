// Package job defines the Job record, its due-time text form and its
// one-line-per-job persisted form.
package job
