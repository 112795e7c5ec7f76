package storage

// schema is applied on every Open; all statements are idempotent
const schema = `
CREATE TABLE IF NOT EXISTS adinfo (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dn          TEXT NOT NULL,
	guid        TEXT NOT NULL,
	sid         TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	enum_state  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS aduser (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id             INTEGER NOT NULL REFERENCES adinfo(id),
	dn                TEXT NOT NULL,
	guid              TEXT NOT NULL,
	sid               TEXT NOT NULL,
	cn                TEXT NOT NULL DEFAULT '',
	sam_account_name  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_aduser_ad_guid ON aduser(ad_id, guid);
CREATE INDEX IF NOT EXISTS idx_aduser_sid ON aduser(sid);

CREATE TABLE IF NOT EXISTS admachine (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id             INTEGER NOT NULL REFERENCES adinfo(id),
	dn                TEXT NOT NULL,
	guid              TEXT NOT NULL,
	sid               TEXT NOT NULL,
	cn                TEXT NOT NULL DEFAULT '',
	sam_account_name  TEXT NOT NULL DEFAULT '',
	dns_hostname      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_admachine_ad_guid ON admachine(ad_id, guid);
CREATE INDEX IF NOT EXISTS idx_admachine_sid ON admachine(sid);

CREATE TABLE IF NOT EXISTS adgroup (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id  INTEGER NOT NULL REFERENCES adinfo(id),
	dn     TEXT NOT NULL,
	guid   TEXT NOT NULL,
	sid    TEXT NOT NULL,
	cn     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_adgroup_ad_guid ON adgroup(ad_id, guid);
CREATE INDEX IF NOT EXISTS idx_adgroup_sid ON adgroup(sid);

CREATE TABLE IF NOT EXISTS adou (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id   INTEGER NOT NULL REFERENCES adinfo(id),
	dn      TEXT NOT NULL,
	guid    TEXT NOT NULL,
	name    TEXT NOT NULL DEFAULT '',
	gplink  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_adou_ad_guid ON adou(ad_id, guid);

CREATE TABLE IF NOT EXISTS adgpo (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id         INTEGER NOT NULL REFERENCES adinfo(id),
	dn            TEXT NOT NULL,
	guid          TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	path          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_adgpo_ad_guid ON adgpo(ad_id, guid);

CREATE TABLE IF NOT EXISTS adtrust (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id                INTEGER NOT NULL REFERENCES adinfo(id),
	dn                   TEXT NOT NULL,
	guid                 TEXT NOT NULL DEFAULT '',
	cn                   TEXT NOT NULL DEFAULT '',
	security_identifier  TEXT NOT NULL DEFAULT '',
	trust_direction      INTEGER NOT NULL DEFAULT 0,
	trust_type           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS adspn (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id          INTEGER NOT NULL REFERENCES adinfo(id),
	owner_sid      TEXT NOT NULL,
	service_class  TEXT NOT NULL,
	computername   TEXT NOT NULL,
	port           TEXT NOT NULL DEFAULT '',
	service_name   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS spnservice (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id          INTEGER NOT NULL REFERENCES adinfo(id),
	owner_sid      TEXT NOT NULL,
	service_class  TEXT NOT NULL,
	computername   TEXT NOT NULL,
	port           TEXT NOT NULL DEFAULT '',
	service_name   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS delegation (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	machine_sid    TEXT NOT NULL,
	target_spn     TEXT NOT NULL,
	service_class  TEXT NOT NULL DEFAULT '',
	computername   TEXT NOT NULL DEFAULT '',
	port           TEXT NOT NULL DEFAULT '',
	service_name   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS gplink (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id       INTEGER NOT NULL REFERENCES adinfo(id),
	ou_guid     TEXT NOT NULL,
	gpo_dn      TEXT NOT NULL,
	link_order  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tokengroup (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id        INTEGER NOT NULL REFERENCES adinfo(id),
	guid         TEXT NOT NULL,
	sid          TEXT NOT NULL DEFAULT '',
	object_type  TEXT NOT NULL DEFAULT '',
	member_sid   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tokengroup_ad_guid ON tokengroup(ad_id, guid);

CREATE TABLE IF NOT EXISTS adsd (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id        INTEGER NOT NULL REFERENCES adinfo(id),
	guid         TEXT NOT NULL,
	sid          TEXT NOT NULL DEFAULT '',
	object_type  TEXT NOT NULL DEFAULT '',
	sd           TEXT NOT NULL,
	sd_hash      TEXT NOT NULL,
	UNIQUE (ad_id, guid)
);

CREATE TABLE IF NOT EXISTS graphinfo (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id  INTEGER NOT NULL REFERENCES adinfo(id)
);

CREATE TABLE IF NOT EXISTS edgelookup (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id  INTEGER NOT NULL REFERENCES adinfo(id),
	oid    TEXT,
	otype  TEXT NOT NULL DEFAULT '',
	UNIQUE (ad_id, oid)
);

CREATE TABLE IF NOT EXISTS edge (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	graph_id  INTEGER NOT NULL REFERENCES graphinfo(id),
	ad_id     INTEGER NOT NULL REFERENCES adinfo(id),
	src       INTEGER NOT NULL REFERENCES edgelookup(id),
	dst       INTEGER NOT NULL REFERENCES edgelookup(id),
	label     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edge_graph ON edge(graph_id, src, dst);
`
