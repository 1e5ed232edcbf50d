// Package contacts persists the campaign contact table.
//
// Two backends are available behind one Store interface:
//
//   - "file": CSV table with columns phone,name,sent (default). The whole
//     table is rewritten atomically on every mutation; reads tolerate a
//     missing file (empty table).
//   - "sqlite": SQLite database file. Insertion order is preserved via
//     rowid so sweeps iterate contacts in import order, same as the CSV
//     backend.
//
// Phones are the unique key. A contact's missing name is represented as an
// empty string in memory; the literal "NULL" marker appears only at the
// CSV file boundary for compatibility with existing spreadsheets.
package contacts
