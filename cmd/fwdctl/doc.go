// Package main implements fwdctl, the command line client of the fwdsync
// agent REST API.
package main
