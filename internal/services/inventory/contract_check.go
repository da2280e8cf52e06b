//go:build invcheck

package inventory

const contractChecks = true
