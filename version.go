package wlf

const Version = "0.1.0"
