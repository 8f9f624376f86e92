package comments

// Short is fine.
var Short = 1

// This comment is definitely longer than the limit of eighty characters // want `Comment too long`
var Long = 2

//go:generate echo "a directive is never reported, even when it is longer than the limit"
