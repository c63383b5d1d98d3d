//go:build darwin

package iphdr

// The BSD-derived raw IP input path hands back ip_len in host order with the
// header length removed, and expects host order on IP_HDRINCL sends.
var platformFormat = HostNormalized
