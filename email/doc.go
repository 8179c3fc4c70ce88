package email

// email composes MIME messages in one of four shapes (plain text, HTML only,
// text/HTML alternative, and alternative plus attachments) and hands them to
// a Transport for delivery to a single SMTP relay. It is not designed to
// represent the user-facing content of an email, and includes this content
// in message bodies regardless of what it contains.
