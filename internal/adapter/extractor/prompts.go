package extractor

const (
	pdfInstruction = "Analyze the provided file document and extract all visible details, including text, numbers, tables, charts, signature, icons or any other information. " +
		"Provide a more detailed summary, explaining all the information present in the file, without any greetings, or conversational elements. " +
		"The summary should explain all text, values, relationships, signature, icons and structural elements as they appear in the file document."

	imageInstruction = "Analyze the provided image and extract all visible details, including text, numbers, tables, charts, signature, icons or any other information. " +
		"Provide a detailed summary, explaining all the information present in the image, without any greetings, or conversational elements. " +
		"The summary should explain all text, values, relationships, signature, icons and structural elements as they appear in the image."

	docxImagesInstruction = "Analyze all the provided images and extract all visible details, including text, numbers, tables, charts, signatures, icons, or any other information. " +
		"Provide a detailed summary of each image in order."

	tablesInstruction = "Analyze all provided files and extract all visible details, including text, numbers, tables, charts, signatures, icons, or any other information. " +
		"Provide a very detailed summary (perform calculations, tell what it means) for each table in order. " +
		"Separate the summaries of consecutive tables with one blank line and do not use blank lines inside a summary."
)
