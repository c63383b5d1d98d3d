//go:build !darwin

package iphdr

var platformFormat = Standard
