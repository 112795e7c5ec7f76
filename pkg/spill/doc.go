/*
Package spill implements the append-only staging files the enumeration
manager writes security descriptors and token-group records to before bulk
loading them into the store.

Each run owns two files, sd_<UTC-YYYYMMDD_HHMMSS>.gzip and
token_<UTC-YYYYMMDD_HHMMSS>.gzip. A file is a gzip stream of JSON objects,
one per CRLF-terminated line. There is no random access: the write path is
strictly sequential and the read path streams the file back during bulk
load, after which the manager deletes it.

Spilling decouples LDAP fan-in from database write latency; workers can run
ahead of the store without per-record transactional overhead.
*/
package spill
