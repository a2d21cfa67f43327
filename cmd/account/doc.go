// Package account implements the account records of authgate and the store
// adapters that persist them.
//
// An Account carries a single active credential slot. Session code compares a
// presented credential against that slot on every request, so adapters must
// make slot writes atomic and must never cache account state.
//
// Adapters: MemoryStore (dev/tests), PostgresStore (pgx), DynamoStore (DynamoDB)
// and RedisStore (go-redis). All of them satisfy Store.
package account
