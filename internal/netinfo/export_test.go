package netinfo

var FirstIPv4 = firstIPv4
