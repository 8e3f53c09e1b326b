// Package audit records grant, revoke and entity mutations of the sharing
// service as structured events so that authorization changes can be traced
// after the fact.
package audit
