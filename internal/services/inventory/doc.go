// Package inventory wraps an ISteamInventory-shaped native service.
//
// Queries such as GetAllItems return a ResultHandle right away; the native
// side reports completion later through callback records that an external
// pump delivers to the facade's Channel. Variable-length results are read
// with the native two-phase protocol (ask for the size, then fill a buffer
// of exactly that size), implemented once in FetchSized.
//
// A native side that answers the size query and then fails the fill, or fills
// a different count, breaks that protocol. Release builds return
// ErrFillFailed. Development builds should use the invcheck tag, which turns
// the violation into a panic:
//
//	go test -tags invcheck ./internal/services/inventory/...
//
// Handles returned from accepted requests belong to the caller until
// DestroyResult. Releasing a handle twice is undefined on the native side.
package inventory
