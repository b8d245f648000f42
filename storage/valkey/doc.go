// Package valkey provides a Valkey-backed storage.KV.
//
// Values are written with SET PX so expiry is enforced by the server, and
// Delete uses the integer reply of DEL, which makes concurrent deletes of
// the same key report existed == true exactly once.
//
// Example usage:
//
//	store, err := valkey.New(valkey.Config{Address: "localhost:6379"})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	records := storage.NewRecords(store)
package valkey
