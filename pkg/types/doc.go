/*
Package types defines the directory object records shared across grackle.

Every record other than DomainInfo carries the ad_id of the enumeration run
that produced it. Struct tags cover both uses of the records: db tags for the
relational store (sqlx) and json tags for the spill files the manager stages
security descriptors and token groups through.

The package also holds the attribute-string parsers that belong to the data
model rather than to any pipeline stage: ParseSPN for servicePrincipalName
values, ParseGPLinks for the gPLink grammar, ParseDelegation for
allowedtodelegateto targets and DomainNameFromDN for deriving the DNS domain
name from a domain DN.
*/
package types
