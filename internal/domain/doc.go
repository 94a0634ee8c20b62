// Package domain turns Common Alerting Protocol (CAP 1.2) weather warnings
// into bilingual GeoJSON features.
//
// # Source documents
//
// The Meteorological Service of Canada publishes one CAP XML file per alert
// update. Each file carries one <info> block per language (English and
// "fr-CA") and each block lists the <area> polygons it covers:
//
//	<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
//	  <identifier>urn:oid:2.49.0.1.124...</identifier>
//	  <references>sender,urn:oid:...,2024-05-01T12:00:00-00:00</references>
//	  <info>
//	    <language>en-CA</language>
//	    <effective>2024-05-01T12:00:00-00:00</effective>
//	    <expires>2024-05-02T12:00:00-00:00</expires>
//	    <parameter><valueName>...</valueName><value>warning</value></parameter>
//	    <area><areaDesc>Ottawa</areaDesc><polygon>45.0,-75.0 45.1,-75.0 ...</polygon></area>
//	  </info>
//	</alert>
//
// # Area keys
//
// Areas are deduplicated and paired across languages by [AreaKey]: "a-" plus
// the first 25 characters of the polygon with '-', ',', ' ' and '.' removed.
// It is a prefix key, not a geometry hash, and the first area seen for a key
// wins within one document.
//
// # Dates
//
// CAP dates are reduced to YYYYMMDDHHMMSS and read as UTC without applying the
// zone offset (see [ParseCAPTime]). Output properties use [OutputTimeLayout].
//
// # Pairing
//
// Features are only emitted when the English and French sets have the same
// size once expired alerts are removed. Otherwise the document yields no
// features and [Result.Pairing] lists the unmatched keys.
//
// # Geometry
//
// CAP polygons are lat/lon pairs. [BuildRing] walks them last pair first,
// swaps them to GeoJSON lon/lat order with a zero elevation, drops repeated
// positions and appends the last walked position as closing vertex.
package domain
