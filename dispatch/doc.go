package dispatch

// dispatch turns a single send request from the command line into one of
// the email package's four message shapes. It owns the attachment files it
// opens and closes them once the send returns.
